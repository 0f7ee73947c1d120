package notify

import (
	"sync"
	"testing"
	"time"
)

func TestSignalWakesAllWaiters(t *testing.T) {
	var s Signal
	const waiters = 4
	var ready, woke sync.WaitGroup
	for range waiters {
		ready.Add(1)
		woke.Add(1)
		go func() {
			defer woke.Done()
			ch := s.C()
			ready.Done()
			<-ch
		}()
	}
	ready.Wait()
	s.Notify()

	done := make(chan struct{})
	go func() {
		woke.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiters not woken")
	}
}

func TestSignalRearms(t *testing.T) {
	var s Signal
	before := s.C()
	s.Notify()
	select {
	case <-before:
	default:
		t.Fatal("channel from before Notify is still open")
	}
	select {
	case <-s.C():
		t.Fatal("channel from after Notify is already closed")
	default:
	}
}
