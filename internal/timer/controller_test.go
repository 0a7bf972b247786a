package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

func startedStore(budget int, questions int) *session.Store {
	qs := make([]model.Question, questions)
	for i := range qs {
		qs[i] = model.Question{ID: int64(i + 1), Index: i}
	}
	s := session.NewStore()
	s.StartAttempt(model.Attempt{
		ID:        uuid.New(),
		TestID:    1,
		Test:      model.Test{ID: 1, AvailableTime: budget},
		Questions: qs,
	})
	return s
}

func TestExpiryFiresOnce(t *testing.T) {
	s := startedStore(600, 4)
	var fired int32
	c := NewController(s, Options{OnExpire: func(uuid.UUID) { atomic.AddInt32(&fired, 1) }})

	for i := 0; i < 601; i++ {
		c.Tick()
	}
	if got := c.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	if !c.Expired() {
		t.Fatal("expected timer to be expired")
	}
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("expected expiry to fire once, fired %d times", got)
	}

	c.Tick()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("expected no re-fire after expiry, fired %d times", got)
	}
	if el, _ := s.Elapsed(); el != 602 {
		t.Errorf("time must keep accumulating past the budget, got %d", el)
	}
}

func TestExpiryLatchResetsForNewAttempt(t *testing.T) {
	s := startedStore(2, 1)
	var fired int32
	c := NewController(s, Options{OnExpire: func(uuid.UUID) { atomic.AddInt32(&fired, 1) }})

	c.Tick()
	c.Tick()
	c.Tick()

	s.StartAttempt(model.Attempt{
		ID:        uuid.New(),
		Test:      model.Test{AvailableTime: 1},
		Questions: []model.Question{{ID: 1}},
	})
	c.Tick()

	if got := atomic.LoadInt32(&fired); got != 2 {
		t.Errorf("expected one expiry per attempt (2), got %d", got)
	}
}

func TestZeroBudgetNeverExpires(t *testing.T) {
	s := startedStore(0, 2)
	fired := false
	c := NewController(s, Options{OnExpire: func(uuid.UUID) { fired = true }})

	for i := 0; i < 100; i++ {
		c.Tick()
	}
	if fired || c.Expired() {
		t.Error("zero budget must never expire")
	}
	if c.ProgressPercent() != 0 {
		t.Errorf("expected 0%% progress without budget, got %v", c.ProgressPercent())
	}
}

func TestDerivedValues(t *testing.T) {
	s := startedStore(200, 1)
	c := NewController(s, Options{})

	for i := 0; i < 50; i++ {
		c.Tick()
	}
	if got := c.Remaining(); got != 150 {
		t.Errorf("expected 150 remaining, got %d", got)
	}
	if got := c.ProgressPercent(); got != 25 {
		t.Errorf("expected 25%% progress, got %v", got)
	}
	if got := c.FormattedElapsed(); got != "00:50" {
		t.Errorf("expected 00:50, got %s", got)
	}
	if got := c.FormattedRemaining(); got != "02:30" {
		t.Errorf("expected 02:30, got %s", got)
	}

	s.RestoreProgress(nil, 0, 1000)
	if got := c.ProgressPercent(); got != 100 {
		t.Errorf("expected progress capped at 100, got %v", got)
	}
}

func TestNoAttemptDerivedValues(t *testing.T) {
	c := NewController(session.NewStore(), Options{})
	c.Tick()
	if c.Remaining() != 0 || c.Expired() || c.ProgressPercent() != 0 {
		t.Error("expected zero values without an attempt")
	}
}

func TestLoopTicksAndStops(t *testing.T) {
	s := startedStore(600, 1)
	var ticks int32
	c := NewController(s, Options{
		Interval:  5 * time.Millisecond,
		AutoStart: true,
		OnTick:    func() { atomic.AddInt32(&ticks, 1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	if !c.Running() {
		t.Fatal("expected loop to run after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&ticks) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&ticks) < 3 {
		t.Fatal("expected at least 3 ticks")
	}

	c.Pause()
	if c.Running() {
		t.Fatal("expected loop to stop on pause")
	}
	paused, _ := s.Elapsed()
	time.Sleep(30 * time.Millisecond)
	if el, _ := s.Elapsed(); el != paused {
		t.Fatalf("elapsed advanced while paused: %d -> %d", paused, el)
	}

	c.Resume()
	if !c.Running() || s.IsPaused() {
		t.Fatal("expected loop to restart on resume")
	}

	c.Stop()
	if c.Running() {
		t.Fatal("expected loop to be gone after Stop")
	}
	stopped, _ := s.Elapsed()
	time.Sleep(30 * time.Millisecond)
	if el, _ := s.Elapsed(); el != stopped {
		t.Errorf("elapsed advanced after Stop: %d -> %d", stopped, el)
	}
}

func TestStartWithoutAutoStartDoesNotTick(t *testing.T) {
	s := startedStore(600, 1)
	c := NewController(s, Options{Interval: time.Millisecond})
	c.Start(context.Background())
	defer c.Stop()

	if c.Running() {
		t.Error("expected no loop without AutoStart")
	}
}

func TestContextCancelEndsLoop(t *testing.T) {
	s := startedStore(600, 1)
	c := NewController(s, Options{Interval: time.Millisecond, AutoStart: true})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for c.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.Running() {
		t.Error("expected loop to end with its context")
	}
}
