package ipc

import "sync"

// Signals turns control messages into channels a main loop can select
// on. Pending signals coalesce: two resets before the loop looks are one
// reset.
type Signals struct {
	stop  chan struct{}
	reset chan struct{}
}

func NewSignals() *Signals {
	return &Signals{
		stop:  make(chan struct{}, 1),
		reset: make(chan struct{}, 1),
	}
}

// Handle is a Listen handler. It reports whether cmd was understood.
func (s *Signals) Handle(msg ControlMessage) bool {
	switch msg.Cmd {
	case CmdStop:
		notify(s.stop)
	case CmdReset:
		notify(s.reset)
	default:
		return false
	}
	return true
}

// ResetRequested consumes a pending reset.
func (s *Signals) ResetRequested() bool {
	select {
	case <-s.reset:
		return true
	default:
		return false
	}
}

// Reset fires once per pending reset request.
func (s *Signals) Reset() <-chan struct{} { return s.reset }

// StopOr returns a channel closed on the first of a stop command or
// other. Stops sent before the call are discarded. release must be
// called when the caller no longer waits.
func (s *Signals) StopOr(other <-chan struct{}) (stop <-chan struct{}, release func()) {
	select {
	case <-s.stop:
	default:
	}

	out := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(out)
		select {
		case <-s.stop:
		case <-other:
		case <-done:
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
