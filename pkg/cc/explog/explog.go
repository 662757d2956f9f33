// Package explog records congestion-control estimate updates for offline
// experiment analysis. The output format is one line per update:
//
//	timestamp_s, as_bps, ar_bps, combined_bps
//
// preceded by a comment header, so existing plotting tooling can consume it
// directly. Recording is a pure side channel and never influences control
// behavior.
package explog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/thesyncim/cc/pkg/cc"
)

const header = "# GCC estimates log - timestamp_s, as_bps, ar_bps, gcc_bps\n"

// Recorder writes UpdateRecords as CSV lines. Safe for concurrent use,
// though a single controller emits records sequentially.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	err    error
}

// NewRecorder wraps w and writes the header line. The caller keeps
// ownership of w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Recorder{w: bw}, nil
}

// Create opens (truncating) the file at path and returns a Recorder that
// owns it; Close flushes and closes the file.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create estimates log: %w", err)
	}
	r, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Record writes one update line. After the first write error the recorder
// goes quiet and the error is reported by Close; an estimate log must never
// take down the media path.
func (r *Recorder) Record(rec cc.UpdateRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	ts := float64(rec.Timestamp.UnixNano()) / 1e9
	_, r.err = fmt.Fprintf(r.w, "%.6f, %d, %d, %d\n", ts, rec.AsBps, rec.ArBps, rec.CombinedBps)
}

// Observer returns the Record method as a cc.UpdateObserver, for passing to
// cc.WithUpdateObserver.
func (r *Recorder) Observer() cc.UpdateObserver {
	return r.Record
}

// Flush writes buffered lines through to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}

// Close flushes and, when the recorder owns the file, closes it. It returns
// the first error encountered during the recorder's lifetime.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if flushErr := r.w.Flush(); r.err == nil {
		r.err = flushErr
	}
	if r.closer != nil {
		if closeErr := r.closer.Close(); r.err == nil {
			r.err = closeErr
		}
		r.closer = nil
	}
	return r.err
}
