package node

import (
	"context"
	"sync"
	"time"
)

// Announcer periodically broadcasts the node's DISCOINFO so peers keep it
// in their directories. Each tick also runs the optional housekeeping
// callback (peer expiry).
type Announcer struct {
	interval time.Duration
	announce func(ctx context.Context) error
	onTick   func()

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	done      chan struct{}
	sent      int
	failed    int
	lastSent  time.Time
	lastError error
}

// AnnouncerStats summarizes announcer activity.
type AnnouncerStats struct {
	Sent      int
	Failed    int
	LastSent  time.Time
	LastError error
}

// NewAnnouncer creates an announcer calling announce every interval.
func NewAnnouncer(interval time.Duration, announce func(ctx context.Context) error, onTick func()) *Announcer {
	return &Announcer{
		interval: interval,
		announce: announce,
		onTick:   onTick,
	}
}

// Start begins announcing immediately and then every interval until Stop
// is called or ctx is done.
func (a *Announcer) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.loop(ctx, a.stopCh, a.done)
}

// Stop stops announcing and waits for the loop to exit.
func (a *Announcer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	done := a.done
	a.mu.Unlock()

	<-done
}

// IsRunning returns true while the announcer loop is active.
func (a *Announcer) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stats returns current announcer statistics.
func (a *Announcer) Stats() AnnouncerStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AnnouncerStats{
		Sent:      a.sent,
		Failed:    a.failed,
		LastSent:  a.lastSent,
		LastError: a.lastError,
	}
}

func (a *Announcer) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Announcer) tick(ctx context.Context) {
	err := a.announce(ctx)

	a.mu.Lock()
	if err != nil {
		a.failed++
		a.lastError = err
	} else {
		a.sent++
		a.lastSent = time.Now()
	}
	a.mu.Unlock()

	if a.onTick != nil {
		a.onTick()
	}
}
