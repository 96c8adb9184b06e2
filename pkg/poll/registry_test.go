package poll

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartIsIdempotent(t *testing.T) {
	var ticks atomic.Int64
	r := NewRegistry(Config{
		Interval: 10 * time.Millisecond,
		OnTick:   func(string) { ticks.Add(1) },
	})
	defer r.StopAll()

	for i := 0; i < 5; i++ {
		r.Start("sess-1")
	}
	if got := r.ActiveCount(); got != 1 {
		t.Fatalf("expected exactly one task, got %d", got)
	}

	time.Sleep(55 * time.Millisecond)
	r.Stop("sess-1")
	got := ticks.Load()
	// One task at a 10ms interval cannot produce far more ticks than
	// elapsed intervals; duplicate tasks would roughly double this.
	if got < 1 || got > 9 {
		t.Fatalf("unexpected tick count for single task: %d", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRegistry(Config{Interval: 10 * time.Millisecond})
	defer r.StopAll()

	r.Start("sess-1")
	r.Stop("sess-1")
	r.Stop("sess-1")
	r.Stop("sess-1")
	if got := r.ActiveCount(); got != 0 {
		t.Fatalf("expected zero tasks, got %d", got)
	}
	if r.Active("sess-1") {
		t.Fatal("expected sess-1 to be inactive")
	}
}

func TestStopAll(t *testing.T) {
	r := NewRegistry(Config{Interval: time.Hour})
	for _, id := range []string{"a", "b", "c"} {
		r.Start(id)
	}
	if got := r.ActiveCount(); got != 3 {
		t.Fatalf("expected three tasks, got %d", got)
	}
	r.StopAll()
	if got := r.ActiveCount(); got != 0 {
		t.Fatalf("expected zero tasks after StopAll, got %d", got)
	}
}

func TestTickInvokesHandlerWithID(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	r := NewRegistry(Config{
		Interval: 5 * time.Millisecond,
		OnTick: func(id string) {
			mu.Lock()
			seen[id]++
			mu.Unlock()
		},
	})
	defer r.StopAll()

	r.Start("sess-1")
	r.Start("sess-2")
	time.Sleep(30 * time.Millisecond)
	r.StopAll()

	mu.Lock()
	defer mu.Unlock()
	if seen["sess-1"] == 0 || seen["sess-2"] == 0 {
		t.Fatalf("expected ticks for both sessions, got %v", seen)
	}
}

func TestStopFromWithinTick(t *testing.T) {
	var ticks atomic.Int64
	var r *Registry
	r = NewRegistry(Config{
		Interval: 5 * time.Millisecond,
		OnTick: func(id string) {
			ticks.Add(1)
			r.Stop(id)
		},
	})
	defer r.StopAll()

	r.Start("sess-1")
	time.Sleep(40 * time.Millisecond)
	if got := ticks.Load(); got != 1 {
		t.Fatalf("expected exactly one tick after self-stop, got %d", got)
	}
	if r.Active("sess-1") {
		t.Fatal("expected task to be gone")
	}
}

func TestMaxAgeExpiresTask(t *testing.T) {
	var expired atomic.Int64
	r := NewRegistry(Config{
		Interval: 5 * time.Millisecond,
		MaxAge:   15 * time.Millisecond,
		OnExpire: func(string) { expired.Add(1) },
	})
	defer r.StopAll()

	r.Start("sess-1")
	time.Sleep(60 * time.Millisecond)
	if got := expired.Load(); got != 1 {
		t.Fatalf("expected one expiry, got %d", got)
	}
	if r.Active("sess-1") {
		t.Fatal("expected expired task to be removed")
	}
}

func TestRestartAfterStop(t *testing.T) {
	r := NewRegistry(Config{Interval: time.Hour})
	defer r.StopAll()

	r.Start("sess-1")
	r.Stop("sess-1")
	r.Start("sess-1")
	if !r.Active("sess-1") {
		t.Fatal("expected restart after stop to create a fresh task")
	}
}
