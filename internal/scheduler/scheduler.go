// Package scheduler decides once per frame whether staged platform results
// should be broadcast.
package scheduler

import (
	"time"
)

// Scheduler rate-limits broadcasts. A negative frequency broadcasts every
// frame, zero never broadcasts, and a positive value broadcasts that many
// times per second.
type Scheduler struct {
	frequencyHz float64
	last        time.Time
}

// New creates a Scheduler with the given frequency, anchored at now.
func New(frequencyHz float64, now time.Time) *Scheduler {
	return &Scheduler{frequencyHz: frequencyHz, last: now}
}

// FrequencyHz returns the current frequency.
func (s *Scheduler) FrequencyHz() float64 {
	return s.frequencyHz
}

// SetFrequency changes the frequency. The interval is re-derived on the next
// ShouldBroadcast call.
func (s *Scheduler) SetFrequency(hz float64) {
	s.frequencyHz = hz
}

// LastBroadcast returns the time of the last scheduled broadcast.
func (s *Scheduler) LastBroadcast() time.Time {
	return s.last
}

// Reset anchors the schedule at now.
func (s *Scheduler) Reset(now time.Time) {
	s.last = now
}

// Interval returns the broadcast period, or zero for the always/never sentinels.
func (s *Scheduler) Interval() time.Duration {
	if s.frequencyHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.frequencyHz)
}

// ShouldBroadcast reports whether a broadcast is due at now and, if so,
// advances the last-broadcast time. The timestamp moves forward by one
// interval per broadcast so that the long-run rate matches the frequency
// regardless of frame timing; if the schedule has fallen more than one
// interval behind it snaps to now. Comparing with >= and advancing by the
// interval is what keeps 2 Hz at 20±1 broadcasts per 10 s for any frame rate
// of 10 fps or more; setting last to now would drop 10 fps to 16.
func (s *Scheduler) ShouldBroadcast(now time.Time) bool {
	switch {
	case s.frequencyHz < 0:
		s.advanceTo(now)
		return true
	case s.frequencyHz == 0:
		return false
	}

	interval := s.Interval()
	if now.Sub(s.last) < interval {
		return false
	}

	next := s.last.Add(interval)
	if now.Sub(next) >= interval {
		next = now
	}
	s.advanceTo(next)
	return true
}

func (s *Scheduler) advanceTo(t time.Time) {
	if t.After(s.last) {
		s.last = t
	}
}
