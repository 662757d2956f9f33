package cc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateStats_EmptyReturnsNotOk(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())

	_, ok := r.Rate(time.Now())
	assert.False(t, ok)
}

func TestRateStats_SingleSampleReturnsNotOk(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	now := time.Now()

	r.Update(1200, now)

	_, ok := r.Rate(now)
	assert.False(t, ok)
}

func TestRateStats_TinySpanReturnsNotOk(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	now := time.Now()

	r.Update(1200, now)
	r.Update(1200, now.Add(100*time.Microsecond))

	_, ok := r.Rate(now.Add(100 * time.Microsecond))
	assert.False(t, ok, "sub-millisecond spans produce garbage rates")
}

func TestRateStats_BasicRate(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	base := time.Unix(1_000_000_000, 0)

	r.Update(1200, base)
	r.Update(1200, base.Add(100*time.Millisecond))

	rate, ok := r.Rate(base.Add(100 * time.Millisecond))
	require.True(t, ok)
	// 2400 bytes over 100ms.
	assert.Equal(t, int64(192_000), rate)
}

func TestRateStats_SteadyStream(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	base := time.Unix(1_000_000_000, 0)

	// 1200 bytes every 10ms for half a second.
	var last time.Time
	for i := 0; i < 50; i++ {
		last = base.Add(time.Duration(i) * 10 * time.Millisecond)
		r.Update(1200, last)
	}

	rate, ok := r.Rate(last)
	require.True(t, ok)
	// 50 packets over 490ms of span: a shade under 1 Mbps.
	assert.InDelta(t, 980_000, float64(rate), 0.02*980_000)
}

func TestRateStats_WindowSliding(t *testing.T) {
	r := NewRateStats(RateStatsConfig{WindowSize: time.Second})
	base := time.Unix(1_000_000_000, 0)

	r.Update(100_000, base)
	r.Update(1200, base.Add(2*time.Second))
	r.Update(1200, base.Add(2*time.Second+100*time.Millisecond))

	rate, ok := r.Rate(base.Add(2*time.Second + 100*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, int64(192_000), rate, "the burst outside the window is gone")
}

func TestRateStats_GapExpiresEverything(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	base := time.Unix(1_000_000_000, 0)

	r.Update(1200, base)
	r.Update(1200, base.Add(50*time.Millisecond))

	_, ok := r.Rate(base.Add(10 * time.Second))
	assert.False(t, ok, "all samples expired")
}

func TestRateStats_ZeroWindowUsesDefault(t *testing.T) {
	r := NewRateStats(RateStatsConfig{})
	base := time.Unix(1_000_000_000, 0)

	r.Update(1200, base)
	r.Update(1200, base.Add(500*time.Millisecond))

	_, ok := r.Rate(base.Add(500 * time.Millisecond))
	assert.True(t, ok, "500ms apart still fits the default 1s window")
}

func TestRateStats_Reset(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	base := time.Unix(1_000_000_000, 0)

	r.Update(1200, base)
	r.Update(1200, base.Add(100*time.Millisecond))

	r.Reset()

	_, ok := r.Rate(base.Add(200 * time.Millisecond))
	assert.False(t, ok)

	// Reuse after reset works normally.
	r.Update(1200, base.Add(300*time.Millisecond))
	r.Update(1200, base.Add(400*time.Millisecond))
	rate, ok := r.Rate(base.Add(400 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, int64(192_000), rate)
}
