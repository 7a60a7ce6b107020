package capture

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLifecycleZeroValueIsActive(t *testing.T) {
	var l Lifecycle
	if l.State() != Active {
		t.Fatalf("State = %v, want active", l.State())
	}
	if !l.Enter() {
		t.Fatal("Enter on active lifecycle = false")
	}
	l.Exit()
	if l.InFlight() != 0 {
		t.Fatalf("InFlight = %d, want 0", l.InFlight())
	}
}

func TestLifecycleRejectsAfterDrain(t *testing.T) {
	var l Lifecycle
	l.Drain()
	if l.State() != Draining {
		t.Fatalf("State = %v, want draining", l.State())
	}
	if l.Enter() {
		t.Fatal("Enter after Drain = true")
	}
	if l.InFlight() != 0 {
		t.Fatalf("rejected Enter leaked in-flight count %d", l.InFlight())
	}
	if !l.Destroy() {
		t.Fatal("first Destroy = false")
	}
	if l.Destroy() {
		t.Fatal("second Destroy = true")
	}
	if l.State() != Destroyed || l.Enter() {
		t.Fatal("destroyed lifecycle admitted a callback")
	}
}

func TestLifecycleDrainWaitsForInFlight(t *testing.T) {
	var l Lifecycle
	if !l.Enter() {
		t.Fatal("Enter = false")
	}

	var exited atomic.Bool
	done := make(chan struct{})
	go func() {
		l.Drain()
		if !exited.Load() {
			t.Error("Drain returned while a callback was in flight")
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Drain returned early")
	default:
	}
	exited.Store(true)
	l.Exit()
	<-done
}

// After Drain returns, no callback may be running or start running.
func TestLifecycleConcurrentCallbacks(t *testing.T) {
	var l Lifecycle
	var inside atomic.Int32
	var violations atomic.Int32
	var drained atomic.Bool
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if !l.Enter() {
					continue
				}
				inside.Add(1)
				if drained.Load() {
					violations.Add(1)
				}
				inside.Add(-1)
				l.Exit()
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	l.Drain()
	drained.Store(true)
	if n := inside.Load(); n != 0 {
		t.Fatalf("%d callbacks inside after Drain", n)
	}
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("%d callbacks ran after Drain returned", v)
	}
}
