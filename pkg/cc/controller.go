package cc

import (
	"time"

	"github.com/pion/logging"

	"github.com/thesyncim/cc/pkg/cc/internal"
)

// Update is a fresh estimate emitted by a controller when the delay path
// produced a new Ar. It carries everything needed to build an outbound REMB
// message.
type Update struct {
	// Bitrate is the controller's target in bits per second.
	Bitrate int64

	// SSRCs is the set of media streams the estimate applies to.
	SSRCs []uint32
}

// UpdateRecord is an observability side channel: one structured record per
// estimate update, for offline analysis. Consuming it has no effect on
// control behavior.
type UpdateRecord struct {
	// Timestamp is when the update happened.
	Timestamp time.Time

	// AsBps is the loss-based sender-side estimate, zero for algorithms
	// without a loss path.
	AsBps int64

	// ArBps is the delay-based receiver-side estimate, zero before the
	// first emission.
	ArBps int64

	// CombinedBps is the resulting target bitrate, zero while no target
	// exists.
	CombinedBps int64
}

// UpdateObserver receives UpdateRecords. Implementations must be fast; they
// run synchronously on the packet path.
type UpdateObserver func(UpdateRecord)

// Controller is the strategy interface presented to the transport layer.
// All methods are synchronous and must be serialized by the caller; a
// Controller instance is owned by exactly one media connection.
type Controller interface {
	// OnPacketReceived feeds one received RTP packet to the delay-based
	// estimator. When a fresh Ar results, the recomputed target and the
	// contributing SSRCs are returned with ok=true, driving an immediate
	// outbound REMB.
	OnPacketReceived(pkt PacketSample) (update Update, ok bool)

	// OnReceiverReport feeds the normalized fraction lost from an RTCP
	// receiver report to the loss-based path. Algorithms without a loss
	// path accept and ignore it.
	OnReceiverReport(fractionLost float64)

	// TargetBitrate returns the current best estimate for the encoder and
	// pacer. ok is false until the delay path has produced a first Ar; the
	// caller must fall back to its initial bitrate.
	TargetBitrate() (bitrate int64, ok bool)
}

// controllerOptions collects construction-time settings shared by all
// algorithms.
type controllerOptions struct {
	initialBitrate int64
	minBitrate     int64
	maxBitrate     int64
	ceiling        int64
	filterType     FilterType
	observer       UpdateObserver
	loggerFactory  logging.LoggerFactory
	clock          internal.Clock
}

// Option configures a Controller at construction time.
type Option func(*controllerOptions)

// WithInitialBitrate sets the starting bitrate in bits per second for both
// the delay and loss paths.
func WithInitialBitrate(bps int64) Option {
	return func(o *controllerOptions) {
		o.initialBitrate = bps
	}
}

// WithBitrateBounds sets the [min, max] clamp in bits per second applied to
// both estimates and the combined target.
func WithBitrateBounds(minBps, maxBps int64) Option {
	return func(o *controllerOptions) {
		o.minBitrate = minBps
		o.maxBitrate = maxBps
	}
}

// WithEvaluationCeiling sets an external upper bound on the loss-based
// estimate, used for controlled experiments. Zero disables it.
func WithEvaluationCeiling(bps int64) Option {
	return func(o *controllerOptions) {
		o.ceiling = bps
	}
}

// WithFilterType selects the delay filter for the Ar pipeline.
func WithFilterType(ft FilterType) Option {
	return func(o *controllerOptions) {
		o.filterType = ft
	}
}

// WithUpdateObserver registers a per-update record observer.
func WithUpdateObserver(obs UpdateObserver) Option {
	return func(o *controllerOptions) {
		o.observer = obs
	}
}

// WithLoggerFactory sets a custom logger factory.
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(o *controllerOptions) {
		o.loggerFactory = lf
	}
}

// WithClock overrides the clock, for deterministic tests.
func WithClock(clock internal.Clock) Option {
	return func(o *controllerOptions) {
		o.clock = clock
	}
}

func defaultControllerOptions() controllerOptions {
	return controllerOptions{
		initialBitrate: 500_000,
		minBitrate:     10_000,
		maxBitrate:     10_000_000,
		filterType:     FilterKalman,
	}
}

func (o controllerOptions) remoteEstimatorConfig() RemoteEstimatorConfig {
	cfg := DefaultRemoteEstimatorConfig()
	cfg.FilterType = o.filterType
	cfg.RateControllerConfig.InitialBitrate = o.initialBitrate
	cfg.RateControllerConfig.MinBitrate = o.minBitrate
	cfg.RateControllerConfig.MaxBitrate = o.maxBitrate
	return cfg
}

func (o controllerOptions) lossControllerConfig() LossControllerConfig {
	return LossControllerConfig{
		InitialBitrate: o.initialBitrate,
		MinBitrate:     o.minBitrate,
		MaxBitrate:     o.maxBitrate,
		Ceiling:        o.ceiling,
	}
}

func (o controllerOptions) logger(scope string) logging.LeveledLogger {
	lf := o.loggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return lf.NewLogger(scope)
}

// rembController is the delay-only baseline: the target tracks Ar and loss
// reports are ignored.
type rembController struct {
	estimator *RemoteBitrateEstimator
	observer  UpdateObserver
	clock     internal.Clock
	log       logging.LeveledLogger

	target    int64
	hasTarget bool
}

func newREMBController(opts controllerOptions) Controller {
	clock := opts.clock
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &rembController{
		estimator: NewRemoteBitrateEstimator(opts.remoteEstimatorConfig(), clock),
		observer:  opts.observer,
		clock:     clock,
		log:       opts.logger("cc_remb"),
	}
}

func (c *rembController) OnPacketReceived(pkt PacketSample) (Update, bool) {
	ar, ssrcs, ok := c.estimator.Add(pkt)
	if !ok {
		return Update{}, false
	}

	c.target = ar
	c.hasTarget = true
	c.log.Tracef("ar updated: %d bps, ssrcs=%v", ar, ssrcs)
	c.record()

	return Update{Bitrate: ar, SSRCs: ssrcs}, true
}

func (c *rembController) OnReceiverReport(float64) {
	// delay-based only
}

func (c *rembController) TargetBitrate() (int64, bool) {
	if !c.hasTarget {
		return 0, false
	}
	return c.target, true
}

func (c *rembController) record() {
	if c.observer == nil {
		return
	}
	c.observer(UpdateRecord{
		Timestamp:   c.clock.Now(),
		ArBps:       c.target,
		CombinedBps: c.target,
	})
}

// gccV0Controller combines the delay and loss paths: the target is
// min(Ar, As), clamped to bounds derived from the current Ar so the loss
// path cannot pull the target arbitrarily far from what delay observation
// supports.
type gccV0Controller struct {
	estimator *RemoteBitrateEstimator
	loss      *LossController
	observer  UpdateObserver
	clock     internal.Clock
	log       logging.LeveledLogger

	minBitrate int64
	maxBitrate int64
	ar         int64
	hasAr      bool
}

func newGCCV0Controller(opts controllerOptions) Controller {
	clock := opts.clock
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &gccV0Controller{
		estimator:  NewRemoteBitrateEstimator(opts.remoteEstimatorConfig(), clock),
		loss:       NewLossController(opts.lossControllerConfig()),
		observer:   opts.observer,
		clock:      clock,
		log:        opts.logger("cc_gcc_v0"),
		minBitrate: opts.minBitrate,
		maxBitrate: opts.maxBitrate,
	}
}

func (c *gccV0Controller) OnPacketReceived(pkt PacketSample) (Update, bool) {
	ar, ssrcs, ok := c.estimator.Add(pkt)
	if !ok {
		return Update{}, false
	}

	c.ar = ar
	c.hasAr = true

	target, _ := c.TargetBitrate()
	c.log.Tracef("ar=%d as=%d target=%d", ar, c.loss.Bitrate(), target)
	c.record()

	return Update{Bitrate: target, SSRCs: ssrcs}, true
}

func (c *gccV0Controller) OnReceiverReport(fractionLost float64) {
	as := c.loss.Update(fractionLost)
	c.log.Tracef("fraction_lost=%.3f as=%d", fractionLost, as)
	// Before the first Ar the change is externally invisible, but still
	// worth a record for offline analysis.
	c.record()
}

func (c *gccV0Controller) TargetBitrate() (int64, bool) {
	if !c.hasAr {
		return 0, false
	}

	target := c.ar
	if as := c.loss.Bitrate(); as < target {
		target = as
	}

	// Bounds follow the delay estimate: the loss path may not drag the
	// target below a tenth of Ar or above twice Ar.
	floor := c.minBitrate
	if tenth := c.ar / 10; tenth > floor {
		floor = tenth
	}
	ceiling := c.maxBitrate
	if twice := 2 * c.ar; twice < ceiling {
		ceiling = twice
	}

	if target > ceiling {
		target = ceiling
	}
	if target < floor {
		target = floor
	}
	return target, true
}

func (c *gccV0Controller) record() {
	if c.observer == nil {
		return
	}
	combined, _ := c.TargetBitrate()
	c.observer(UpdateRecord{
		Timestamp:   c.clock.Now(),
		AsBps:       c.loss.Bitrate(),
		ArBps:       c.ar,
		CombinedBps: combined,
	})
}
