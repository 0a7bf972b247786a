package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	// DefaultInterval is the autosave cadence while an attempt is active.
	DefaultInterval = 30 * time.Second

	// MaxSnapshotAge is the age ceiling of a snapshot. A snapshot exactly
	// MaxSnapshotAge old is still valid; anything older is stale.
	MaxSnapshotAge = 24 * time.Hour
)

// PurgeReason says why a stored snapshot was removed.
type PurgeReason string

const (
	PurgeCorrupt  PurgeReason = "corrupt"
	PurgeStale    PurgeReason = "stale"
	PurgeDiscard  PurgeReason = "discard"
	PurgeFinished PurgeReason = "finished"
)

// Source is the attempt store the manager snapshots. *session.Store implements it.
type Source interface {
	Progress() (model.SavedProgress, bool)
	RestoreProgress(answers []model.QuestionAttempt, index, elapsed int)
}

// Metrics receives snapshot outcomes. Implementations must not block.
type Metrics interface {
	SnapshotWritten(ok bool)
	SnapshotPurged(reason PurgeReason)
}

// Options configures a Manager.
type Options struct {
	Key         string
	Interval    time.Duration
	MaxAge      time.Duration
	Now         func() time.Time
	OnSaveError func(error)
	Metrics     Metrics
	Logger      zerolog.Logger
}

// Manager persists attempt progress so it survives reloads, and offers it back
// once on the next load.
type Manager struct {
	src  Source
	repo Repository
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	pending  bool
	snapshot *model.SavedProgress

	// writeMu orders snapshot writes against purges. closed is set by Clear
	// and guarded by writeMu; no save lands after it.
	writeMu sync.Mutex
	closed  bool
}

// NewManager creates a Manager for one (profile, test) key.
func NewManager(src Source, repo Repository, opts Options) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = MaxSnapshotAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		src:  src,
		repo: repo,
		opts: opts,
		log:  opts.Logger.With().Str("component", "recovery").Str("key", opts.Key).Logger(),
	}
}

// Init looks for a stored snapshot and arms the pending-recovery flag when a
// valid one exists. Corrupt and stale snapshots are purged.
func (m *Manager) Init(ctx context.Context) bool {
	data, err := m.repo.Load(ctx, m.opts.Key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn().Err(err).Msg("Snapshot read failed")
		}
		return false
	}

	snap, err := Decode(data)
	if err != nil {
		m.log.Warn().Err(err).Msg("Corrupt snapshot purged")
		m.purge(ctx, PurgeCorrupt)
		return false
	}

	if m.IsStale(snap) {
		m.log.Info().Time("saved_at", snap.SavedAt).Msg("Stale snapshot purged")
		m.purge(ctx, PurgeStale)
		return false
	}

	m.mu.Lock()
	m.pending = true
	m.snapshot = &snap
	m.mu.Unlock()
	return true
}

// IsStale reports whether snap is older than the age ceiling.
func (m *Manager) IsStale(snap model.SavedProgress) bool {
	return IsStale(snap, m.opts.Now(), m.opts.MaxAge)
}

// IsStale reports whether snap, observed at now, is older than maxAge.
func IsStale(snap model.SavedProgress, now time.Time, maxAge time.Duration) bool {
	return now.Sub(snap.SavedAt) > maxAge
}

// HasRecovery reports whether a snapshot is awaiting a recover/discard decision.
func (m *Manager) HasRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Snapshot returns the snapshot offered for recovery.
func (m *Manager) Snapshot() (model.SavedProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return model.SavedProgress{}, false
	}
	snap := *m.snapshot
	snap.Answers = model.CloneQuestionAttempts(snap.Answers)
	return snap, true
}

// Recover feeds the pending snapshot into the store. The stored copy is kept
// until Clear.
func (m *Manager) Recover() bool {
	m.mu.Lock()
	if !m.pending || m.snapshot == nil {
		m.mu.Unlock()
		return false
	}
	snap := *m.snapshot
	m.pending = false
	m.mu.Unlock()

	m.src.RestoreProgress(snap.Answers, snap.CurrentQuestionIndex, snap.ElapsedSeconds)
	m.log.Info().
		Int("index", snap.CurrentQuestionIndex).
		Int("elapsed", snap.ElapsedSeconds).
		Msg("Progress recovered")
	return true
}

// Discard purges the stored snapshot and resolves the pending decision without
// touching the store.
func (m *Manager) Discard(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.pending = false
	m.snapshot = nil
	m.mu.Unlock()

	m.purge(ctx, PurgeDiscard)
}

// Clear purges the stored snapshot after the attempt is finished or abandoned.
// It waits for an in-flight save, and every later save is a no-op, so a closed
// attempt is never offered for recovery again.
func (m *Manager) Clear(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.closed = true

	m.mu.Lock()
	m.pending = false
	m.snapshot = nil
	m.mu.Unlock()

	m.purge(ctx, PurgeFinished)
}

// Save writes the current progress. Failures are reported through the hooks
// and never returned. Nothing is written while a recovery decision is pending,
// so the offered snapshot cannot be overwritten by the fresh attempt.
func (m *Manager) Save(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.closed || m.HasRecovery() {
		return
	}

	progress, ok := m.src.Progress()
	if !ok {
		return
	}
	progress.SavedAt = m.opts.Now().UTC()

	if err := m.write(ctx, progress); err != nil {
		m.log.Warn().Err(err).Msg("Snapshot write failed")
		if m.opts.Metrics != nil {
			m.opts.Metrics.SnapshotWritten(false)
		}
		if m.opts.OnSaveError != nil {
			m.opts.OnSaveError(err)
		}
		return
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.SnapshotWritten(true)
	}
	m.log.Debug().Int("elapsed", progress.ElapsedSeconds).Msg("Snapshot saved")
}

func (m *Manager) write(ctx context.Context, progress model.SavedProgress) error {
	data, err := Encode(progress)
	if err != nil {
		return err
	}
	if err := m.repo.Save(ctx, m.opts.Key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Run saves on every interval until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Save(ctx)
		}
	}
}

// HandleVisibilityChange saves when the view becomes hidden.
func (m *Manager) HandleVisibilityChange(ctx context.Context, hidden bool) {
	if hidden {
		m.Save(ctx)
	}
}

// HandleUnload saves when the view is going away.
func (m *Manager) HandleUnload(ctx context.Context) {
	m.Save(ctx)
}

func (m *Manager) purge(ctx context.Context, reason PurgeReason) {
	if err := m.repo.Delete(ctx, m.opts.Key); err != nil {
		m.log.Warn().Err(err).Str("reason", string(reason)).Msg("Snapshot purge failed")
		return
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.SnapshotPurged(reason)
	}
}
