package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/input"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/recovery"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/timer"
	"golang.org/x/sync/errgroup"
)

// Session errors
var (
	ErrNoActiveAttempt = errors.New("no active attempt")
	ErrUnknownQuestion = errors.New("question is not part of the attempt")
	ErrUnknownAnswer   = errors.New("answer does not belong to the question")
	ErrInvalidAction   = errors.New("invalid answer action")
	ErrNoRecovery      = errors.New("no recovery snapshot pending")
	ErrFinishing       = errors.New("attempt is already being submitted")
	ErrShuttingDown    = errors.New("session service is shutting down")
)

// unloadSaveTimeout bounds the final snapshot write after a session ends.
const unloadSaveTimeout = 5 * time.Second

// TestProvider creates, grades and closes attempts. *TestService implements it.
type TestProvider interface {
	StartTest(ctx context.Context, profileID string, testID int64) (model.Attempt, error)
	FinishTest(ctx context.Context, attemptID uuid.UUID, answers []model.QuestionAttempt, elapsed int) (model.TestResult, error)
	AbandonTest(ctx context.Context, attemptID uuid.UUID) error
}

// EventType names a session event.
type EventType string

const (
	EventState    EventType = "state"
	EventExpired  EventType = "expired"
	EventFinished EventType = "finished"
)

// Event is pushed to the view whenever session state changes.
type Event struct {
	Type   EventType
	View   View
	Result *model.TestResult
}

// EventSink receives session events. It may be called from the ticking
// goroutine and must be safe for concurrent use.
type EventSink func(Event)

// View is the render state of a session.
type View struct {
	Active            bool                    `json:"active"`
	AttemptID         *uuid.UUID              `json:"attempt_id,omitempty"`
	CurrentIndex      int                     `json:"current_question_index"`
	CurrentQuestionID int64                   `json:"current_question_id,omitempty"`
	Answers           []model.QuestionAttempt `json:"answers"`
	Stats             session.Stats           `json:"stats"`
	ElapsedSeconds    int                     `json:"elapsed_seconds"`
	RemainingSeconds  int                     `json:"remaining_seconds"`
	Elapsed           string                  `json:"elapsed"`
	Remaining         string                  `json:"remaining"`
	TimeProgress      float64                 `json:"time_progress"`
	Expired           bool                    `json:"expired"`
	Paused            bool                    `json:"paused"`
	RecoveryPending   bool                    `json:"recovery_pending"`
}

// SessionConfig holds the engine cadences of a session.
type SessionConfig struct {
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	SnapshotMaxAge   time.Duration
	SwipeThreshold   float64
}

// SessionConfigFromConfig maps application config onto session cadences.
func SessionConfigFromConfig(cfg *config.Config) SessionConfig {
	return SessionConfig{
		TickInterval:     cfg.TickInterval,
		SnapshotInterval: cfg.SnapshotInterval,
		SnapshotMaxAge:   cfg.SnapshotMaxAge,
		SwipeThreshold:   cfg.SwipeThreshold,
	}
}

// SessionService opens test sessions.
type SessionService struct {
	tests   TestProvider
	repo    recovery.Repository
	cfg     SessionConfig
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time

	// closeMu orders live.Add in Open against CloseAll.
	closeMu  sync.Mutex
	closing  context.Context
	closeAll context.CancelFunc
	live     sync.WaitGroup
}

// NewSessionService creates a new SessionService. rec may be nil.
func NewSessionService(tests TestProvider, repo recovery.Repository, cfg SessionConfig, rec *metrics.Recorder, log zerolog.Logger) *SessionService {
	closing, closeAll := context.WithCancel(context.Background())
	return &SessionService{
		tests:    tests,
		repo:     repo,
		cfg:      cfg,
		metrics:  rec,
		log:      log.With().Str("component", "session_service").Logger(),
		now:      time.Now,
		closing:  closing,
		closeAll: closeAll,
	}
}

// CloseAll stops every running session and waits until each has written its
// final snapshot. Open fails with ErrShuttingDown afterwards.
func (s *SessionService) CloseAll() {
	s.closeMu.Lock()
	s.closeAll()
	s.closeMu.Unlock()
	s.live.Wait()
}

// Session owns one attempt store and the controllers that act on it.
type Session struct {
	profileID string
	testID    int64

	store    *session.Store
	timer    *timer.Controller
	recovery *recovery.Manager
	keyboard *input.Keyboard
	swipe    *input.Swipe

	tests   TestProvider
	metrics *metrics.Recorder
	log     zerolog.Logger
	closing context.Context
	live    *sync.WaitGroup

	sinkMu sync.RWMutex
	sink   EventSink

	finishMu        sync.Mutex
	finishRequested atomic.Bool
	dialogOpen      atomic.Bool
}

// Open starts a new attempt on testID for profileID and looks for a recovery
// snapshot of an earlier attempt. Every opened session must be Run exactly
// once; CloseAll waits for it.
func (s *SessionService) Open(ctx context.Context, profileID string, testID int64) (*Session, error) {
	s.closeMu.Lock()
	if s.closing.Err() != nil {
		s.closeMu.Unlock()
		return nil, ErrShuttingDown
	}
	// Released by Run, or right here when Open fails.
	s.live.Add(1)
	s.closeMu.Unlock()
	opened := false
	defer func() {
		if !opened {
			s.live.Done()
		}
	}()

	attempt, err := s.tests.StartTest(ctx, profileID, testID)
	if err != nil {
		return nil, fmt.Errorf("start test: %w", err)
	}

	sess := &Session{
		profileID: profileID,
		testID:    testID,
		store:     session.NewStore(),
		tests:     s.tests,
		metrics:   s.metrics,
		closing:   s.closing,
		live:      &s.live,
		log: s.log.With().
			Str("profile_id", profileID).
			Int64("test_id", testID).
			Str("attempt_id", attempt.ID.String()).
			Logger(),
	}

	sess.timer = timer.NewController(sess.store, timer.Options{
		Interval:  s.cfg.TickInterval,
		AutoStart: true,
		OnExpire:  sess.onExpire,
	})

	ropts := recovery.Options{
		Key:      config.CacheKey.TestProgressKey(profileID, testID),
		Interval: s.cfg.SnapshotInterval,
		MaxAge:   s.cfg.SnapshotMaxAge,
		Now:      s.now,
		Logger:   s.log,
	}
	if s.metrics != nil {
		ropts.Metrics = s.metrics
	}
	sess.recovery = recovery.NewManager(sess.store, s.repo, ropts)

	sess.keyboard = input.NewKeyboard(sess.store, input.KeyboardOptions{
		OnFinish: func() { sess.finishRequested.Store(true) },
	})
	sess.swipe = input.NewSwipe(input.SwipeOptions{
		Threshold:    s.cfg.SwipeThreshold,
		OnSwipeLeft:  sess.store.NextQuestion,
		OnSwipeRight: sess.store.PrevQuestion,
	})

	sess.store.StartAttempt(attempt)
	sess.store.OnChange(sess.emitState)

	if sess.recovery.Init(ctx) {
		sess.log.Info().Msg("Recovery snapshot offered")
	}
	sess.syncKeyboard()

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	opened = true
	return sess, nil
}

// SetSink installs the event sink. Events raised before a sink is set are dropped.
func (s *Session) SetSink(sink EventSink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

func (s *Session) emit(ev Event) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

func (s *Session) emitState() {
	s.emit(Event{Type: EventState, View: s.View()})
}

func (s *Session) onExpire(attemptID uuid.UUID) {
	s.log.Info().Msg("Attempt time expired")
	if s.metrics != nil {
		s.metrics.TimerExpired()
	}
	s.emit(Event{Type: EventExpired, View: s.View()})
}

// Run drives the timer and autosave loops until ctx ends, then writes a final
// snapshot and stops the timer. Nothing keeps running after Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.live.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()

	defer func() {
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	s.timer.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		s.timer.Stop()
		return nil
	})
	g.Go(func() error {
		s.recovery.Run(gctx)
		return nil
	})

	err := g.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), unloadSaveTimeout)
	defer cancel()
	s.recovery.HandleUnload(saveCtx)
	return err
}

// Attempt returns a copy of the loaded attempt.
func (s *Session) Attempt() (model.Attempt, bool) {
	a, ok := s.store.Active()
	if !ok {
		return model.Attempt{}, false
	}
	return a.Attempt, true
}

// RecoverySnapshot returns the snapshot awaiting a recover or discard decision.
func (s *Session) RecoverySnapshot() (model.SavedProgress, bool) {
	return s.recovery.Snapshot()
}

// View returns the current render state.
func (s *Session) View() View {
	v := View{
		Answers:         []model.QuestionAttempt{},
		Paused:          s.store.IsPaused(),
		RecoveryPending: s.recovery != nil && s.recovery.HasRecovery(),
	}

	a, ok := s.store.Active()
	if !ok {
		return v
	}

	id := a.Attempt.ID
	v.Active = true
	v.AttemptID = &id
	v.CurrentIndex = a.CurrentIndex
	if a.CurrentIndex < len(a.Attempt.Questions) {
		v.CurrentQuestionID = a.Attempt.Questions[a.CurrentIndex].ID
	}
	v.Answers = a.Attempt.Answers
	v.Stats = s.store.Stats()
	v.ElapsedSeconds = a.ElapsedSeconds
	v.RemainingSeconds = s.timer.Remaining()
	v.Elapsed = timer.Format(a.ElapsedSeconds)
	v.Remaining = timer.Format(v.RemainingSeconds)
	v.TimeProgress = s.timer.ProgressPercent()
	v.Expired = s.timer.Expired()
	v.Paused = a.Paused
	return v
}

// Answer records a response. answerID must be one of the question's options.
func (s *Session) Answer(questionID int64, answerID *int64, action model.AnswerAction) error {
	if !action.Valid() {
		return ErrInvalidAction
	}
	q, err := s.question(questionID)
	if err != nil {
		return err
	}
	if answerID != nil && !q.HasAnswer(*answerID) {
		return ErrUnknownAnswer
	}
	s.store.SetAnswer(questionID, answerID, action)
	return nil
}

// ToggleFlag flips the review flag of a question.
func (s *Session) ToggleFlag(questionID int64) error {
	if _, err := s.question(questionID); err != nil {
		return err
	}
	s.store.ToggleFlag(questionID)
	return nil
}

func (s *Session) question(questionID int64) (model.Question, error) {
	if !s.store.HasAttempt() {
		return model.Question{}, ErrNoActiveAttempt
	}
	q, ok := s.store.Question(questionID)
	if !ok {
		return model.Question{}, ErrUnknownQuestion
	}
	return q, nil
}

// Goto moves to index, clamped into the question range.
func (s *Session) Goto(index int) error {
	if !s.store.HasAttempt() {
		return ErrNoActiveAttempt
	}
	s.store.SetCurrentQuestion(index)
	return nil
}

// Next moves to the next question.
func (s *Session) Next() { s.store.NextQuestion() }

// Prev moves to the previous question.
func (s *Session) Prev() { s.store.PrevQuestion() }

// Pause stops the clock.
func (s *Session) Pause() error {
	if !s.store.HasAttempt() {
		return ErrNoActiveAttempt
	}
	s.timer.Pause()
	return nil
}

// Resume restarts the clock.
func (s *Session) Resume() error {
	if !s.store.HasAttempt() {
		return ErrNoActiveAttempt
	}
	s.timer.Resume()
	return nil
}

// SetDialogOpen disables keyboard shortcuts while the view shows a dialog.
func (s *Session) SetDialogOpen(open bool) {
	s.dialogOpen.Store(open)
	s.syncKeyboard()
}

func (s *Session) syncKeyboard() {
	s.keyboard.SetEnabled(!s.dialogOpen.Load() && !s.recovery.HasRecovery())
}

// Key handles a shortcut. Ctrl/Meta+Enter submits the attempt, in which case
// the submission error is returned.
func (s *Session) Key(ctx context.Context, ev input.KeyEvent) (bool, error) {
	handled := s.keyboard.Handle(ev)
	if s.finishRequested.Swap(false) {
		_, err := s.Finish(ctx)
		return handled, err
	}
	return handled, nil
}

// TouchStart begins a swipe gesture.
func (s *Session) TouchStart(p input.Point, touches int) {
	s.swipe.TouchStart(p, touches)
}

// TouchEnd ends a swipe gesture. Left swipes go forward and right swipes go back.
func (s *Session) TouchEnd(p input.Point) int {
	return s.swipe.TouchEnd(p)
}

// Visibility saves a snapshot when the view is hidden.
func (s *Session) Visibility(ctx context.Context, hidden bool) {
	s.recovery.HandleVisibilityChange(ctx, hidden)
}

// Recover applies the pending snapshot onto the attempt.
func (s *Session) Recover() error {
	if !s.recovery.Recover() {
		return ErrNoRecovery
	}
	s.log.Info().Msg("Progress recovered")
	s.syncKeyboard()
	s.timer.Check()
	return nil
}

// Discard drops the pending snapshot and keeps the fresh attempt.
func (s *Session) Discard(ctx context.Context) error {
	if !s.recovery.HasRecovery() {
		return ErrNoRecovery
	}
	s.recovery.Discard(ctx)
	s.log.Info().Msg("Recovery snapshot discarded")
	s.syncKeyboard()
	s.emitState()
	return nil
}

// Finish submits the attempt. On failure the attempt and its snapshot are kept
// and the clock resumes if it was running.
func (s *Session) Finish(ctx context.Context) (model.TestResult, error) {
	if !s.finishMu.TryLock() {
		return model.TestResult{}, ErrFinishing
	}
	defer s.finishMu.Unlock()

	wasPaused := s.store.IsPaused()
	if !s.store.HasAttempt() {
		return model.TestResult{}, ErrNoActiveAttempt
	}
	s.timer.Pause()

	progress, ok := s.store.Progress()
	id, _ := s.store.AttemptID()
	if !ok {
		return model.TestResult{}, ErrNoActiveAttempt
	}

	result, err := s.tests.FinishTest(ctx, id, progress.Answers, progress.ElapsedSeconds)
	if err != nil {
		if s.metrics != nil {
			s.metrics.Submission(false)
		}
		s.log.Warn().Err(err).Msg("Submission failed")
		s.recovery.Save(ctx)
		if !wasPaused {
			s.timer.Resume()
		}
		return model.TestResult{}, fmt.Errorf("finish test: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Submission(true)
	}
	s.store.Reset()
	s.recovery.Clear(ctx)
	s.log.Info().Float64("score", result.Score).Msg("Attempt submitted")

	s.emit(Event{Type: EventFinished, View: s.View(), Result: &result})
	return result, nil
}

// Abandon closes the attempt without grading and removes its snapshot.
func (s *Session) Abandon(ctx context.Context) error {
	id, ok := s.store.AttemptID()
	if !ok {
		return ErrNoActiveAttempt
	}
	if err := s.tests.AbandonTest(ctx, id); err != nil {
		return fmt.Errorf("abandon test: %w", err)
	}
	s.timer.Pause()
	s.store.Reset()
	s.recovery.Clear(ctx)
	s.log.Info().Msg("Attempt abandoned")
	return nil
}
