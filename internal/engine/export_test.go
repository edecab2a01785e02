package engine

import "time"

// WithClock overrides the time source
func (m *StateMachine) WithClock(clock func() time.Time) *StateMachine {
	m.clock = clock
	return m
}
