package cc

import "time"

// REMBSchedulerConfig configures REMB feedback timing.
type REMBSchedulerConfig struct {
	// Interval is the regular send interval. Default: 1 second.
	Interval time.Duration

	// DecreaseThreshold is the relative estimate decrease that triggers an
	// immediate send ahead of the interval. Default: 0.03.
	DecreaseThreshold float64

	// SenderSSRC is the SSRC stamped on outgoing REMB packets.
	SenderSSRC uint32
}

// DefaultREMBSchedulerConfig returns the default scheduler settings.
func DefaultREMBSchedulerConfig() REMBSchedulerConfig {
	return REMBSchedulerConfig{
		Interval:          time.Second,
		DecreaseThreshold: 0.03,
	}
}

// REMBScheduler decides when to send REMB feedback: at a regular cadence,
// plus immediately when the estimate drops noticeably, so the sender backs
// off without waiting out the interval.
type REMBScheduler struct {
	config    REMBSchedulerConfig
	lastSent  time.Time
	lastValue int64
}

// NewREMBScheduler returns a scheduler for the configuration.
func NewREMBScheduler(config REMBSchedulerConfig) *REMBScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.DecreaseThreshold <= 0 {
		config.DecreaseThreshold = 0.03
	}
	return &REMBScheduler{config: config}
}

// ShouldSend reports whether a REMB carrying the given estimate should go
// out now.
func (s *REMBScheduler) ShouldSend(estimate int64, now time.Time) bool {
	if s.lastValue > 0 {
		decrease := float64(s.lastValue-estimate) / float64(s.lastValue)
		if decrease >= s.config.DecreaseThreshold {
			return true
		}
	}
	return s.lastSent.IsZero() || now.Sub(s.lastSent) >= s.config.Interval
}

// BuildAndRecord marshals a REMB for the estimate and records the send.
// Call after ShouldSend returns true.
func (s *REMBScheduler) BuildAndRecord(estimate int64, ssrcs []uint32, now time.Time) ([]byte, error) {
	data, err := BuildREMB(s.config.SenderSSRC, uint64(estimate), ssrcs)
	if err != nil {
		return nil, err
	}
	s.lastSent = now
	s.lastValue = estimate
	return data, nil
}

// MaybeSend combines ShouldSend and BuildAndRecord: it returns
// (packet, true, nil) when a REMB is due and (nil, false, nil) otherwise.
func (s *REMBScheduler) MaybeSend(estimate int64, ssrcs []uint32, now time.Time) ([]byte, bool, error) {
	if !s.ShouldSend(estimate, now) {
		return nil, false, nil
	}
	data, err := s.BuildAndRecord(estimate, ssrcs, now)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// LastSentValue returns the estimate carried by the last REMB, zero if none
// was sent yet.
func (s *REMBScheduler) LastSentValue() int64 {
	return s.lastValue
}

// LastSentTime returns when the last REMB was sent, zero time if never.
func (s *REMBScheduler) LastSentTime() time.Time {
	return s.lastSent
}

// Reset clears the send history.
func (s *REMBScheduler) Reset() {
	s.lastSent = time.Time{}
	s.lastValue = 0
}
