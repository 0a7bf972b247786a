package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/input"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/recovery"
)

var sessionNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu        sync.Mutex
	attempt   model.Attempt
	key       AnswerKey
	finishErr error
	finished  int
	abandoned int
}

func newFakeProvider(budget int) *fakeProvider {
	questions := []model.Question{
		{ID: 1, Index: 0, Answers: []model.Answer{{ID: 11}, {ID: 12}, {ID: 13}}},
		{ID: 2, Index: 1, Answers: []model.Answer{{ID: 21}, {ID: 22}}},
		{ID: 3, Index: 2, Answers: []model.Answer{{ID: 31}, {ID: 32}}},
	}
	answers := make([]model.QuestionAttempt, len(questions))
	for i, q := range questions {
		answers[i] = model.NewQuestionAttempt(q.ID)
	}
	return &fakeProvider{
		attempt: model.Attempt{
			ID:        uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
			TestID:    5,
			ProfileID: "p1",
			Test:      model.Test{ID: 5, AvailableTime: budget, QuestionCount: len(questions)},
			Questions: questions,
			Answers:   answers,
			Status:    model.AttemptStatusInProgress,
		},
		key: AnswerKey{1: 12, 2: 21, 3: 32},
	}
}

func (f *fakeProvider) StartTest(_ context.Context, profileID string, testID int64) (model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.attempt.Clone()
	a.ProfileID = profileID
	a.TestID = testID
	return a, nil
}

func (f *fakeProvider) FinishTest(_ context.Context, attemptID uuid.UUID, answers []model.QuestionAttempt, elapsed int) (model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return model.TestResult{}, f.finishErr
	}
	f.finished++
	return GradeAnswers(attemptID, f.attempt.TestID, f.key, answers, elapsed, sessionNow), nil
}

func (f *fakeProvider) AbandonTest(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned++
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) sink(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) last(t EventType) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == t {
			return l.events[i], true
		}
	}
	return Event{}, false
}

func newSessionService(t *testing.T, provider *fakeProvider, repo recovery.Repository, cfg SessionConfig) *SessionService {
	t.Helper()
	svc := NewSessionService(provider, repo, cfg, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	svc.now = func() time.Time { return sessionNow }
	return svc
}

func seedSnapshot(t *testing.T, repo recovery.Repository, snap model.SavedProgress) {
	t.Helper()
	data, err := recovery.Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := repo.Save(context.Background(), config.CacheKey.TestProgressKey("p1", 5), data); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionOpenFresh(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	v := sess.View()
	if !v.Active || v.RecoveryPending || v.CurrentQuestionID != 1 || v.RemainingSeconds != 600 {
		t.Errorf("unexpected view %+v", v)
	}
	if v.Remaining != "10:00" || v.Elapsed != "00:00" {
		t.Errorf("unexpected formatted times %q %q", v.Elapsed, v.Remaining)
	}
	if _, ok := sess.RecoverySnapshot(); ok {
		t.Error("expected no recovery snapshot")
	}

	handled, err := sess.Key(context.Background(), input.KeyEvent{Key: "2"})
	if !handled || err != nil {
		t.Fatalf("expected digit key handled, got %v %v", handled, err)
	}
	a, _ := sess.Attempt()
	if sel := a.Answers[0].SelectedAnswerID; sel == nil || *sel != 12 {
		t.Errorf("expected answer 12 selected, got %v", sel)
	}
}

func TestSessionAnswerValidation(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name     string
		question int64
		answer   *int64
		action   model.AnswerAction
		want     error
	}{
		{"valid", 2, int64p(22), model.AnswerActionSelected, nil},
		{"doubt without answer", 3, nil, model.AnswerActionDoubt, nil},
		{"unknown question", 9, int64p(22), model.AnswerActionSelected, ErrUnknownQuestion},
		{"answer of another question", 1, int64p(22), model.AnswerActionSelected, ErrUnknownAnswer},
		{"bad action", 1, int64p(11), model.AnswerAction("guess"), ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sess.Answer(tt.question, tt.answer, tt.action); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	a, _ := sess.Attempt()
	if a.Answers[0].Action != model.AnswerActionNone {
		t.Errorf("rejected answer must not change the record, got %+v", a.Answers[0])
	}
	if err := sess.ToggleFlag(9); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestSessionRecover(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	seedSnapshot(t, repo, model.SavedProgress{
		Answers: []model.QuestionAttempt{
			{QuestionID: 1, SelectedAnswerID: int64p(12), Action: model.AnswerActionSelected, TimeSpent: 40},
			{QuestionID: 2, Action: model.AnswerActionDoubt, FlaggedForReview: true},
		},
		CurrentQuestionIndex: 2,
		ElapsedSeconds:       95,
		SavedAt:              sessionNow.Add(-time.Hour),
	})

	svc := newSessionService(t, newFakeProvider(600), repo, SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if snap, ok := sess.RecoverySnapshot(); !ok || snap.ElapsedSeconds != 95 {
		t.Fatalf("expected pending snapshot, got %+v %v", snap, ok)
	}
	if !sess.View().RecoveryPending {
		t.Error("expected view to report pending recovery")
	}
	if handled, _ := sess.Key(context.Background(), input.KeyEvent{Key: "ArrowRight"}); handled {
		t.Error("keyboard must be disabled while recovery is pending")
	}

	if err := sess.Recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}
	v := sess.View()
	if v.ElapsedSeconds != 95 || v.CurrentIndex != 2 || v.Stats.Answered != 1 || v.Stats.Flagged != 1 {
		t.Errorf("unexpected recovered view %+v", v)
	}
	if err := sess.Recover(); !errors.Is(err, ErrNoRecovery) {
		t.Errorf("expected ErrNoRecovery, got %v", err)
	}
	if handled, _ := sess.Key(context.Background(), input.KeyEvent{Key: "ArrowLeft"}); !handled {
		t.Error("keyboard must be enabled after recovery")
	}
}

func TestSessionDiscard(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	seedSnapshot(t, repo, model.SavedProgress{ElapsedSeconds: 30, SavedAt: sessionNow.Add(-time.Minute)})

	svc := newSessionService(t, newFakeProvider(600), repo, SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := sess.Discard(context.Background()); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5)); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("expected snapshot purged, got %v", err)
	}
	if sess.View().ElapsedSeconds != 0 {
		t.Error("discard must not restore progress")
	}
	if err := sess.Discard(context.Background()); !errors.Is(err, ErrNoRecovery) {
		t.Errorf("expected ErrNoRecovery, got %v", err)
	}
}

func TestSessionFinish(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	provider := newFakeProvider(600)
	svc := newSessionService(t, provider, repo, SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events := &eventLog{}
	sess.SetSink(events.sink)

	_ = sess.Answer(1, int64p(12), model.AnswerActionSelected)
	_ = sess.Answer(2, int64p(22), model.AnswerActionSelected)
	sess.Visibility(context.Background(), true)

	res, err := sess.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.Correct != 1 || res.Total != 3 {
		t.Errorf("unexpected result %+v", res)
	}

	ev, ok := events.last(EventFinished)
	if !ok || ev.Result == nil || ev.Result.Correct != 1 || ev.View.Active {
		t.Errorf("expected finished event with result, got %+v", ev)
	}
	if _, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5)); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("expected snapshot cleared after finish, got %v", err)
	}
	if _, err := sess.Finish(context.Background()); !errors.Is(err, ErrNoActiveAttempt) {
		t.Errorf("expected ErrNoActiveAttempt, got %v", err)
	}
}

func TestSessionFinishFailureKeepsAttempt(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	provider := newFakeProvider(600)
	provider.finishErr = errors.New("network down")
	svc := newSessionService(t, provider, repo, SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = sess.Answer(1, int64p(11), model.AnswerActionSelected)

	if _, err := sess.Finish(context.Background()); err == nil {
		t.Fatal("expected finish to fail")
	}

	v := sess.View()
	if !v.Active || v.Paused || v.Stats.Answered != 1 {
		t.Errorf("expected attempt kept and running, got %+v", v)
	}
	data, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5))
	if err != nil {
		t.Fatalf("expected snapshot kept: %v", err)
	}
	snap, err := recovery.Decode(data)
	if err != nil || len(snap.Answers) != 3 {
		t.Errorf("unexpected snapshot %+v (%v)", snap, err)
	}
}

func TestSessionKeyboardFinish(t *testing.T) {
	provider := newFakeProvider(600)
	svc := newSessionService(t, provider, recovery.NewMemoryRepository(), SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	handled, err := sess.Key(context.Background(), input.KeyEvent{Key: "Enter", Ctrl: true})
	if !handled || err != nil {
		t.Fatalf("expected ctrl+enter to submit, got %v %v", handled, err)
	}
	if provider.finished != 1 || sess.View().Active {
		t.Errorf("expected attempt submitted once, got %d", provider.finished)
	}
}

func TestSessionDialogDisablesKeyboard(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.SetDialogOpen(true)
	if handled, _ := sess.Key(context.Background(), input.KeyEvent{Key: "ArrowRight"}); handled {
		t.Error("keyboard must be disabled while a dialog is open")
	}
	sess.SetDialogOpen(false)
	if handled, _ := sess.Key(context.Background(), input.KeyEvent{Key: "ArrowRight"}); !handled {
		t.Error("keyboard must be enabled once the dialog closes")
	}
	if sess.View().CurrentIndex != 1 {
		t.Errorf("expected index 1, got %d", sess.View().CurrentIndex)
	}
}

func TestSessionSwipe(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{SwipeThreshold: 50})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.TouchStart(input.Point{X: 300, Y: 100}, 1)
	if dir := sess.TouchEnd(input.Point{X: 200, Y: 110}); dir != -1 {
		t.Fatalf("expected left swipe, got %d", dir)
	}
	if sess.View().CurrentIndex != 1 {
		t.Errorf("left swipe must go forward, index %d", sess.View().CurrentIndex)
	}

	sess.TouchStart(input.Point{X: 100, Y: 100}, 1)
	sess.TouchEnd(input.Point{X: 220, Y: 100})
	if sess.View().CurrentIndex != 0 {
		t.Errorf("right swipe must go back, index %d", sess.View().CurrentIndex)
	}
}

func TestSessionAbandon(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	provider := newFakeProvider(600)
	svc := newSessionService(t, provider, repo, SessionConfig{})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess.Visibility(context.Background(), true)

	if err := sess.Abandon(context.Background()); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if provider.abandoned != 1 || sess.View().Active {
		t.Errorf("expected abandoned attempt and empty store")
	}
	if _, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5)); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("expected snapshot cleared, got %v", err)
	}
	if err := sess.Abandon(context.Background()); !errors.Is(err, ErrNoActiveAttempt) {
		t.Errorf("expected ErrNoActiveAttempt, got %v", err)
	}
}

func TestSessionRunTicksAndSavesOnExit(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	svc := newSessionService(t, newFakeProvider(600), repo, SessionConfig{
		TickInterval:     5 * time.Millisecond,
		SnapshotInterval: time.Hour,
	})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events := &eventLog{}
	sess.SetSink(events.sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitFor(t, "three ticks", func() bool { return sess.View().ElapsedSeconds >= 3 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	elapsed := sess.View().ElapsedSeconds
	time.Sleep(20 * time.Millisecond)
	if sess.View().ElapsedSeconds != elapsed {
		t.Error("clock kept ticking after Run returned")
	}
	if events.count(EventState) < 3 {
		t.Errorf("expected state events per tick, got %d", events.count(EventState))
	}

	data, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5))
	if err != nil {
		t.Fatalf("expected unload snapshot: %v", err)
	}
	snap, _ := recovery.Decode(data)
	if snap.ElapsedSeconds != elapsed || !snap.SavedAt.Equal(sessionNow) {
		t.Errorf("unexpected unload snapshot %+v", snap)
	}
}

func TestSessionExpiry(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(3), recovery.NewMemoryRepository(), SessionConfig{
		TickInterval:     2 * time.Millisecond,
		SnapshotInterval: time.Hour,
	})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events := &eventLog{}
	sess.SetSink(events.sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	waitFor(t, "expiry", func() bool { return events.count(EventExpired) == 1 })
	waitFor(t, "ticks past the budget", func() bool { return sess.View().ElapsedSeconds >= 6 })

	if events.count(EventExpired) != 1 {
		t.Errorf("expected a single expired event, got %d", events.count(EventExpired))
	}
	v := sess.View()
	if !v.Expired || v.RemainingSeconds != 0 || v.TimeProgress != 100 {
		t.Errorf("unexpected expired view %+v", v)
	}
}

func TestSessionPauseResume(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{
		TickInterval:     2 * time.Millisecond,
		SnapshotInterval: time.Hour,
	})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	waitFor(t, "first tick", func() bool { return sess.View().ElapsedSeconds >= 1 })
	if err := sess.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused := sess.View().ElapsedSeconds
	time.Sleep(20 * time.Millisecond)
	if sess.View().ElapsedSeconds != paused || !sess.View().Paused {
		t.Error("clock must not advance while paused")
	}

	if err := sess.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "ticks after resume", func() bool { return sess.View().ElapsedSeconds > paused })
}

func TestSessionServiceCloseAll(t *testing.T) {
	repo := recovery.NewMemoryRepository()
	svc := newSessionService(t, newFakeProvider(600), repo, SessionConfig{
		TickInterval:     5 * time.Millisecond,
		SnapshotInterval: time.Hour,
	})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()
	waitFor(t, "first tick", func() bool { return sess.View().ElapsedSeconds >= 1 })

	svc.CloseAll()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after CloseAll")
	}
	if _, err := repo.Load(context.Background(), config.CacheKey.TestProgressKey("p1", 5)); err != nil {
		t.Errorf("expected snapshot written on close: %v", err)
	}
	if _, err := svc.Open(context.Background(), "p1", 5); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

// gatedRepository holds the first Save until release is closed.
type gatedRepository struct {
	*recovery.MemoryRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepository) Save(ctx context.Context, key string, data []byte) error {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return r.MemoryRepository.Save(ctx, key, data)
}

func TestSessionFinishDuringAutosaveLeavesNoSnapshot(t *testing.T) {
	repo := &gatedRepository{
		MemoryRepository: recovery.NewMemoryRepository(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	provider := newFakeProvider(600)
	svc := newSessionService(t, provider, repo, SessionConfig{
		TickInterval:     time.Hour,
		SnapshotInterval: 5 * time.Millisecond,
	})
	sess, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	select {
	case <-repo.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("autosave never started")
	}

	finished := make(chan error, 1)
	go func() {
		_, err := sess.Finish(context.Background())
		finished <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	if err := <-finished; err != nil {
		t.Fatalf("finish: %v", err)
	}
	cancel()
	<-done

	key := config.CacheKey.TestProgressKey("p1", 5)
	if _, err := repo.Load(context.Background(), key); !errors.Is(err, recovery.ErrNotFound) {
		t.Errorf("finished attempt still has a stored snapshot: %v", err)
	}

	next, err := svc.Open(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := next.RecoverySnapshot(); ok {
		t.Error("finished attempt offered for recovery on the next session")
	}
}

func TestSessionServiceOpenFailureReleasesSlot(t *testing.T) {
	svc := newSessionService(t, newFakeProvider(600), recovery.NewMemoryRepository(), SessionConfig{})
	svc.tests = failingStart{}

	if _, err := svc.Open(context.Background(), "p1", 5); err == nil {
		t.Fatal("expected open to fail")
	}

	closed := make(chan struct{})
	go func() {
		svc.CloseAll()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("CloseAll waited on a session that never opened")
	}
}

type failingStart struct{ *fakeProvider }

func (failingStart) StartTest(context.Context, string, int64) (model.Attempt, error) {
	return model.Attempt{}, errors.New("test service down")
}
