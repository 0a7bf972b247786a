package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInterval is the wall-clock cadence of one store tick.
const DefaultInterval = time.Second

// Source is the attempt state the controller drives. *session.Store implements it.
type Source interface {
	Tick()
	Pause()
	Resume()
	HasAttempt() bool
	IsPaused() bool
	AttemptID() (uuid.UUID, bool)
	Elapsed() (int, bool)
	TimeBudget() (int, bool)
}

// Options configures a Controller.
type Options struct {
	Interval  time.Duration
	AutoStart bool
	// OnExpire fires once per attempt when the remaining time reaches zero.
	// It runs on the ticking goroutine and must not call Pause or Stop.
	OnExpire func(attemptID uuid.UUID)
	// OnTick runs after every tick, on the ticking goroutine.
	OnTick func()
}

// Controller converts wall-clock time into store ticks. The authoritative
// elapsed value stays in the store.
type Controller struct {
	src  Source
	opts Options

	mu      sync.Mutex
	parent  context.Context
	running *loop
	latched uuid.UUID
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a Controller for src.
func NewController(src Source, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Controller{src: src, opts: opts}
}

// Start binds the controller to ctx and begins ticking when an unpaused
// attempt is loaded and AutoStart is set. The loop ends with ctx or Stop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.parent = ctx
	c.mu.Unlock()

	if c.opts.AutoStart && c.src.HasAttempt() && !c.src.IsPaused() {
		c.startLoop()
	}
}

// Stop halts the loop and waits for it to exit. A stopped controller does not
// restart on Resume until Start is called again.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.parent = nil
	c.mu.Unlock()
	c.stopLoop()
}

// Pause pauses the attempt and halts the loop.
func (c *Controller) Pause() {
	c.src.Pause()
	c.stopLoop()
}

// Resume clears the pause flag and restarts the loop while an attempt is loaded.
func (c *Controller) Resume() {
	if !c.src.HasAttempt() {
		return
	}
	c.src.Resume()
	c.startLoop()
}

// Running reports whether the ticking loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running != nil
}

// Tick advances the attempt by one second and evaluates expiry.
func (c *Controller) Tick() {
	c.src.Tick()
	c.Check()
	if c.opts.OnTick != nil {
		c.opts.OnTick()
	}
}

// Check fires OnExpire if the loaded attempt has run out of time and has not
// fired before.
func (c *Controller) Check() {
	id, ok := c.src.AttemptID()
	if !ok || !c.Expired() {
		return
	}

	c.mu.Lock()
	if c.latched == id {
		c.mu.Unlock()
		return
	}
	c.latched = id
	c.mu.Unlock()

	if c.opts.OnExpire != nil {
		c.opts.OnExpire(id)
	}
}

// Remaining returns max(0, budget - elapsed) in seconds.
func (c *Controller) Remaining() int {
	budget, ok := c.src.TimeBudget()
	if !ok {
		return 0
	}
	elapsed, _ := c.src.Elapsed()
	if rem := budget - elapsed; rem > 0 {
		return rem
	}
	return 0
}

// Expired reports whether a positive budget has been used up.
func (c *Controller) Expired() bool {
	budget, ok := c.src.TimeBudget()
	if !ok || budget <= 0 {
		return false
	}
	return c.Remaining() == 0
}

// ProgressPercent returns elapsed/budget as 0–100.
func (c *Controller) ProgressPercent() float64 {
	budget, ok := c.src.TimeBudget()
	if !ok || budget <= 0 {
		return 0
	}
	elapsed, _ := c.src.Elapsed()
	pct := float64(elapsed) / float64(budget) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// FormattedElapsed returns the elapsed time as MM:SS or HH:MM:SS.
func (c *Controller) FormattedElapsed() string {
	elapsed, _ := c.src.Elapsed()
	return Format(elapsed)
}

// FormattedRemaining returns the remaining time as MM:SS or HH:MM:SS.
func (c *Controller) FormattedRemaining() string {
	return Format(c.Remaining())
}

func (c *Controller) startLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running != nil || c.parent == nil {
		return
	}

	ctx, cancel := context.WithCancel(c.parent)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	c.running = l

	go c.run(ctx, l)
}

func (c *Controller) stopLoop() {
	c.mu.Lock()
	l := c.running
	c.running = nil
	c.mu.Unlock()

	if l == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (c *Controller) run(ctx context.Context, l *loop) {
	defer close(l.done)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.running == l {
				c.running = nil
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
