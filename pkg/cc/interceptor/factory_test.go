package interceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/cc/pkg/cc"
)

func TestNewControllerInterceptorFactory(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f, err := NewControllerInterceptorFactory()
		require.NoError(t, err)
		assert.Equal(t, cc.AlgorithmGCCV0, f.algorithm)
		assert.Equal(t, time.Second, f.rembInterval)
	})

	t.Run("remb algorithm", func(t *testing.T) {
		f, err := NewControllerInterceptorFactory(WithAlgorithm(cc.AlgorithmREMB))
		require.NoError(t, err)
		assert.Equal(t, cc.AlgorithmREMB, f.algorithm)
	})

	t.Run("unknown algorithm fails at construction", func(t *testing.T) {
		f, err := NewControllerInterceptorFactory(WithAlgorithm("bogus"))
		require.Error(t, err)
		assert.Nil(t, f)
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("non-positive remb interval rejected", func(t *testing.T) {
		_, err := NewControllerInterceptorFactory(WithFactoryREMBInterval(0))
		require.Error(t, err)

		_, err = NewControllerInterceptorFactory(WithFactoryREMBInterval(-time.Second))
		require.Error(t, err)
	})
}

func TestFactory_NewInterceptor(t *testing.T) {
	f, err := NewControllerInterceptorFactory(
		WithAlgorithm(cc.AlgorithmGCCV0),
		WithControllerOptions(cc.WithInitialBitrate(750_000)),
		WithFactoryREMBInterval(500*time.Millisecond),
		WithFactorySenderSSRC(0xCAFE),
	)
	require.NoError(t, err)

	i, err := f.NewInterceptor("")
	require.NoError(t, err)
	require.NotNil(t, i)

	ci, ok := i.(*ControllerInterceptor)
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, ci.rembInterval)
	require.NoError(t, ci.Close())
}

func TestFactory_EachInterceptorGetsOwnController(t *testing.T) {
	f, err := NewControllerInterceptorFactory()
	require.NoError(t, err)

	a, err := f.NewInterceptor("")
	require.NoError(t, err)
	b, err := f.NewInterceptor("")
	require.NoError(t, err)

	ca := a.(*ControllerInterceptor)
	cb := b.(*ControllerInterceptor)
	assert.NotSame(t, ca.controller, cb.controller)

	require.NoError(t, ca.Close())
	require.NoError(t, cb.Close())
}

func TestFactory_OnREMBPropagates(t *testing.T) {
	called := func(float32, []uint32) {}
	f, err := NewControllerInterceptorFactory(WithFactoryOnREMB(called))
	require.NoError(t, err)

	i, err := f.NewInterceptor("")
	require.NoError(t, err)

	ci := i.(*ControllerInterceptor)
	assert.NotNil(t, ci.onREMB)
	require.NoError(t, ci.Close())
}