package stream

import (
	"sync"
	"sync/atomic"
)

// Signal couples the play gate of a session with its teardown latch. The
// control side opens and closes the gate, the data side waits on it.
type Signal struct {
	mu       sync.Mutex
	cond     *sync.Cond
	open     bool
	torndown atomic.Bool
	done     chan struct{}
}

func NewSignal() *Signal {
	s := &Signal{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Signal) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.cond.Broadcast()
}

// Pause closes the gate. The gate stays open after teardown.
func (s *Signal) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown.Load() {
		return
	}
	s.open = false
}

// Teardown latches the session closed and opens the gate so a waiting data
// loop wakes up and observes it. Further calls are no-ops.
func (s *Signal) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown.Swap(true) {
		return
	}
	s.open = true
	close(s.done)
	s.cond.Broadcast()
}

// Wait blocks until the gate is open. It returns false once the session has
// been torn down.
func (s *Signal) Wait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.open {
		s.cond.Wait()
	}
	return !s.torndown.Load()
}

func (s *Signal) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && !s.torndown.Load()
}

func (s *Signal) TornDown() bool {
	return s.torndown.Load()
}

// Done is closed on teardown.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
