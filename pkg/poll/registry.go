package poll

import (
	"sync"
	"time"
)

// DefaultInterval is the delay between status checks for one session.
const DefaultInterval = 5 * time.Second

// Config wires the registry's timing and callbacks.
type Config struct {
	// Interval between ticks; DefaultInterval when zero.
	Interval time.Duration
	// MaxAge bounds how long one session may be polled. Zero means
	// unbounded, matching the backend's own behavior.
	MaxAge time.Duration
	// OnTick runs on every tick with the session id.
	OnTick func(id string)
	// OnExpire runs once when a task exceeds MaxAge; the task is
	// stopped before the callback fires.
	OnExpire func(id string)
}

type task struct {
	stop    chan struct{}
	started time.Time
}

// Registry owns the set of active recurring poll tasks, keyed by
// session id, and guarantees at most one task per id. The task map is
// private; all interaction goes through Start, Stop and StopAll.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]*task
	interval time.Duration
	maxAge   time.Duration
	onTick   func(id string)
	onExpire func(id string)
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg Config) *Registry {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	onTick := cfg.OnTick
	if onTick == nil {
		onTick = func(string) {}
	}
	return &Registry{
		tasks:    make(map[string]*task),
		interval: interval,
		maxAge:   cfg.MaxAge,
		onTick:   onTick,
		onExpire: cfg.OnExpire,
	}
}

// Start begins periodic polling for id. Calling Start for an id that
// already has an active task is a no-op.
func (r *Registry) Start(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; exists {
		return
	}
	t := &task{stop: make(chan struct{}), started: time.Now()}
	r.tasks[id] = t
	go r.run(id, t)
}

func (r *Registry) run(id string, t *task) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if r.maxAge > 0 && time.Since(t.started) > r.maxAge {
				if r.remove(id, t) && r.onExpire != nil {
					r.onExpire(id)
				}
				return
			}
			r.onTick(id)
			// The tick handler may have stopped this task; exit
			// without waiting for the next ticker fire.
			select {
			case <-t.stop:
				return
			default:
			}
		}
	}
}

// Stop cancels and removes the task for id if present; absent ids are
// a no-op.
func (r *Registry) Stop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	delete(r.tasks, id)
	close(t.stop)
}

// StopAll cancels every outstanding task. Call on engine teardown so
// no timer outlives its owner.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		delete(r.tasks, id)
		close(t.stop)
	}
}

// Active reports whether a task exists for id.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// ActiveCount reports the number of live tasks.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// remove deletes id only if it still maps to t, so an expiring task
// cannot cancel a successor started for the same id.
func (r *Registry) remove(id string, t *task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[id]
	if !ok || cur != t {
		return false
	}
	delete(r.tasks, id)
	close(t.stop)
	return true
}
