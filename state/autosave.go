package state

import (
	"sync"
	"time"

	"github.com/luinbytes/iconic/logbook"
)

// DefaultAutosaveDelay is the trailing-edge debounce for state writes.
const DefaultAutosaveDelay = 2 * time.Second

// Autosaver coalesces rapid changes into one save. A save still pending
// when the process dies is lost; the filesystem layout is the source of
// truth and the state file only a cache.
type Autosaver struct {
	mu      sync.Mutex
	delay   time.Duration
	save    func() error
	log     logbook.Logger
	timer   *time.Timer
	pending bool
	saves   int
}

// NewAutosaver creates an autosaver calling save delay after the last Schedule.
func NewAutosaver(delay time.Duration, save func() error, log logbook.Logger) *Autosaver {
	if log == nil {
		log = logbook.Discard
	}
	return &Autosaver{delay: delay, save: save, log: log}
}

// Schedule (re-)arms the timer.
func (a *Autosaver) Schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run()
}

// run saves if something is pending. Callers hold mu.
func (a *Autosaver) run() error {
	if !a.pending {
		return nil
	}
	a.pending = false
	a.saves++
	if err := a.save(); err != nil {
		a.log.Error("Failed to save state: %v", err)
		return err
	}
	return nil
}

// Flush cancels the timer and saves now if a save is pending.
func (a *Autosaver) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return a.run()
}

// Stop cancels any pending save without running it.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = false
}

// Saves returns how many saves have run.
func (a *Autosaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}
