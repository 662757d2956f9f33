package interceptor

import (
	"errors"
	"time"

	"github.com/pion/interceptor"

	"github.com/thesyncim/cc/pkg/cc"
)

// FactoryOption configures a ControllerInterceptorFactory.
type FactoryOption func(*ControllerInterceptorFactory) error

// ControllerInterceptorFactory builds one ControllerInterceptor (with its
// own freshly constructed Controller) per PeerConnection. Register it with
// the Pion interceptor registry.
type ControllerInterceptorFactory struct {
	algorithm      string
	controllerOpts []cc.Option
	rembInterval   time.Duration
	senderSSRC     uint32
	onREMB         func(bitrate float32, ssrcs []uint32)
}

// WithAlgorithm selects the congestion control algorithm by tag. The tag is
// validated when the factory is created, so a misconfigured name fails
// before any session starts. Default: "gcc-v0".
func WithAlgorithm(tag string) FactoryOption {
	return func(f *ControllerInterceptorFactory) error {
		// Validate eagerly: building a throwaway controller exercises the
		// same registry lookup NewInterceptor will use.
		if _, err := cc.New(tag); err != nil {
			return err
		}
		f.algorithm = tag
		return nil
	}
}

// WithControllerOptions appends construction options for each controller,
// such as cc.WithInitialBitrate or cc.WithBitrateBounds.
func WithControllerOptions(opts ...cc.Option) FactoryOption {
	return func(f *ControllerInterceptorFactory) error {
		f.controllerOpts = append(f.controllerOpts, opts...)
		return nil
	}
}

// WithFactoryREMBInterval sets the REMB cadence. Default: 1 second.
func WithFactoryREMBInterval(interval time.Duration) FactoryOption {
	return func(f *ControllerInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("REMB interval must be positive")
		}
		f.rembInterval = interval
		return nil
	}
}

// WithFactorySenderSSRC sets the SSRC stamped on outgoing REMB packets.
func WithFactorySenderSSRC(ssrc uint32) FactoryOption {
	return func(f *ControllerInterceptorFactory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithFactoryOnREMB registers a callback invoked for every REMB sent.
func WithFactoryOnREMB(fn func(bitrate float32, ssrcs []uint32)) FactoryOption {
	return func(f *ControllerInterceptorFactory) error {
		f.onREMB = fn
		return nil
	}
}

// NewControllerInterceptorFactory creates a factory.
//
// Example:
//
//	factory, err := NewControllerInterceptorFactory(
//	    WithAlgorithm(cc.AlgorithmGCCV0),
//	    WithControllerOptions(cc.WithInitialBitrate(500_000)),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewControllerInterceptorFactory(opts ...FactoryOption) (*ControllerInterceptorFactory, error) {
	f := &ControllerInterceptorFactory{
		algorithm:    cc.AlgorithmGCCV0,
		rembInterval: time.Second,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor builds the per-connection interceptor. Called by the Pion
// registry during connection setup.
func (f *ControllerInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	controller, err := cc.New(f.algorithm, f.controllerOpts...)
	if err != nil {
		return nil, err
	}

	opts := []InterceptorOption{
		WithREMBInterval(f.rembInterval),
		WithSenderSSRC(f.senderSSRC),
	}
	if f.onREMB != nil {
		opts = append(opts, WithOnREMB(f.onREMB))
	}

	return NewControllerInterceptor(controller, opts...), nil
}
