package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second

	// drainLimit caps how many queued results are flushed on shutdown.
	drainLimit = 1000
)

// ResultStore persists graded results. *repository.AttemptRepository implements it.
type ResultStore interface {
	SaveResults(ctx context.Context, jobs []model.ResultJob) error
	SaveResult(ctx context.Context, job model.ResultJob) error
}

// ResultWorker consumes persist_results_queue and writes scores to PostgreSQL.
type ResultWorker struct {
	store ResultStore
	rdb   *redis.Client
	log   zerolog.Logger
	poll  time.Duration
}

func NewResultWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "result_worker").Logger(),
		poll:  ResultPollTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx ends, then flushes what it holds and drains the queue.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]model.ResultJob, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("ResultWorker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, w.poll, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(w.poll)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			job, ok := w.decode(item[1])
			if !ok {
				continue
			}
			batch = append(batch, job)
		}
	}
}

func (w *ResultWorker) decode(raw string) (model.ResultJob, bool) {
	var job model.ResultJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return job, false
	}
	return job, true
}

// drain flushes whatever is still queued, in batches.
func (w *ResultWorker) drain(ctx context.Context) {
	batch := make([]model.ResultJob, 0, ResultBatchSize)
	for i := 0; i < drainLimit; i++ {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Result()
		if err != nil {
			break
		}
		if job, ok := w.decode(raw); ok {
			batch = append(batch, job)
		}
		if len(batch) == ResultBatchSize {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
		}
	}
	w.flushSafe(ctx, batch)
}

// ----------------------------------------------------------------
// Batch update with per-row fallback
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []model.ResultJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.store.SaveResults(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk result update failed, using fallback")

		for _, job := range batch {
			if err := w.store.SaveResult(ctx, job); err != nil {
				w.log.Error().Err(err).Str("attempt_id", job.AttemptID.String()).Msg("SaveResult failed, requeueing")
				raw, _ := json.Marshal(job)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("Results persisted")
}
