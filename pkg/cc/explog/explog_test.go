package explog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/cc/pkg/cc"
)

func TestRecorder_WritesHeaderAndLines(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRecorder(&buf)
	require.NoError(t, err)

	r.Record(cc.UpdateRecord{
		Timestamp:   time.Unix(1700000000, 500_000_000),
		AsBps:       2_000_000,
		ArBps:       1_500_000,
		CombinedBps: 1_500_000,
	})
	require.NoError(t, r.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "# GCC estimates log - timestamp_s, as_bps, ar_bps, gcc_bps", lines[0])
	assert.Equal(t, "1700000000.500000, 2000000, 1500000, 1500000", lines[1])
}

func TestRecorder_Observer(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRecorder(&buf)
	require.NoError(t, err)

	obs := r.Observer()
	obs(cc.UpdateRecord{Timestamp: time.Unix(1, 0), AsBps: 1, ArBps: 2, CombinedBps: 3})
	obs(cc.UpdateRecord{Timestamp: time.Unix(2, 0), AsBps: 4, ArBps: 5, CombinedBps: 6})
	require.NoError(t, r.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1.000000, 1, 2, 3", lines[1])
	assert.Equal(t, "2.000000, 4, 5, 6", lines[2])
}

func TestCreate_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimates.log")

	r, err := Create(path)
	require.NoError(t, err)

	r.Record(cc.UpdateRecord{Timestamp: time.Unix(10, 0), AsBps: 100, ArBps: 200, CombinedBps: 100})
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# GCC estimates log"))
	assert.Contains(t, string(data), "10.000000, 100, 200, 100")
}

func TestCreate_BadPath(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "estimates.log"))
	assert.Error(t, err)
}

type failingWriter struct{ writes int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes > 1 {
		return 0, os.ErrClosed
	}
	return len(p), nil
}

func TestRecorder_StickyError(t *testing.T) {
	r, err := NewRecorder(&failingWriter{})
	require.NoError(t, err)

	// Overflow the buffer so writes reach the failing writer.
	big := cc.UpdateRecord{Timestamp: time.Unix(1, 0)}
	for i := 0; i < 10_000; i++ {
		r.Record(big)
	}

	assert.Error(t, r.Close())
}
