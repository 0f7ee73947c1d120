// Package notify provides a broadcast signal.
package notify

import "sync"

// Signal wakes every goroutine waiting on it. The zero value is ready to
// use.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func (s *Signal) current() chan struct{} {
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

// Notify closes the channel current waiters hold and starts a new one.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.current())
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel closed by the next Notify. Waiters call C again
// after each wakeup.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}
