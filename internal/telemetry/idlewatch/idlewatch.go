// Package idlewatch polls a manager's tick counter and fires a callback
// once it has gone quiet for a configurable duration, adapting the
// poll-loop/state-machine shape of the teacher's internal/budget's
// CPUWatcher (which watched process CPU%% to detect an idle Claude
// session) to watching Manager.Tick() instead of CPU usage. There is no
// equivalent in original_source: this is a supplemented feature useful for
// triggering an off-hours telemetry probe once reinforcement traffic has
// stopped.
package idlewatch

import (
	"sync"
	"time"

	"github.com/vthunder/voidmem/internal/voidmem"
)

type status int

const (
	statusUnknown status = iota
	statusActive
	statusIdle
	statusFired
)

// Watcher polls a Manager's tick counter at pollInterval and invokes
// onIdle once the tick has not advanced for idleDuration.
type Watcher struct {
	m *voidmem.Manager
	mu sync.Mutex

	pollInterval time.Duration
	idleDuration time.Duration

	lastTick   int
	lastChange time.Time
	status     status
	firedOnce  bool

	stopChan chan struct{}
	running  bool

	onIdle func(m *voidmem.Manager)
}

// New builds a Watcher against m with the given poll cadence and idle
// threshold.
func New(m *voidmem.Manager, pollInterval, idleDuration time.Duration) *Watcher {
	return &Watcher{
		m:            m,
		pollInterval: pollInterval,
		idleDuration: idleDuration,
		stopChan:     make(chan struct{}),
	}
}

// SetOnIdle installs the callback invoked the first time the manager is
// observed idle for idleDuration. It is not invoked again until the
// manager becomes active and then idle once more.
func (w *Watcher) SetOnIdle(fn func(m *voidmem.Manager)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onIdle = fn
}

// Start begins polling in a background goroutine. Calling Start while
// already running is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	go w.loop()
}

// Stop halts the background poll loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopChan)
		w.running = false
	}
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.poll(time.Now())
		}
	}
}

// poll is the state-transition step, exposed directly so tests can drive
// the state machine deterministically without sleeping on a real ticker.
func (w *Watcher) poll(now time.Time) {
	w.mu.Lock()
	tick := w.m.Tick()

	if w.status == statusUnknown {
		w.lastTick = tick
		w.lastChange = now
		w.status = statusActive
		w.mu.Unlock()
		return
	}

	if tick != w.lastTick {
		w.lastTick = tick
		w.lastChange = now
		w.status = statusActive
		w.firedOnce = false
		w.mu.Unlock()
		return
	}

	idleFor := now.Sub(w.lastChange)
	if idleFor < w.idleDuration {
		w.status = statusIdle
		w.mu.Unlock()
		return
	}

	if w.firedOnce {
		w.mu.Unlock()
		return
	}
	w.firedOnce = true
	w.status = statusFired
	cb := w.onIdle
	m := w.m
	w.mu.Unlock()

	if cb != nil {
		cb(m)
	}
}

// Status reports the watcher's current classification: "unknown",
// "active", "idle", or "fired".
func (w *Watcher) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.status {
	case statusActive:
		return "active"
	case statusIdle:
		return "idle"
	case statusFired:
		return "fired"
	default:
		return "unknown"
	}
}
