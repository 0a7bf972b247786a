package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Domain Errors
var (
	ErrTestNotFound       = errors.New("test not found")
	ErrTestHasNoQuestions = errors.New("test has no questions")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptClosed      = errors.New("attempt is already finished or abandoned")
)

// payloadTTL bounds how long a warmed test payload and answer key stay cached.
const payloadTTL = 6 * time.Hour

// TestStore is the part of the test repository the service reads.
type TestStore interface {
	GetByID(ctx context.Context, id int64) (*model.Test, error)
	ListQuestions(ctx context.Context, testID int64) ([]model.Question, error)
}

// AttemptStore is the part of the attempt repository the service drives.
type AttemptStore interface {
	Create(ctx context.Context, a *model.AttemptRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	MarkFinishing(ctx context.Context, id uuid.UUID) (bool, error)
	RevertFinishing(ctx context.Context, id uuid.UUID) error
	Abandon(ctx context.Context, id uuid.UUID) error
	ListByProfile(ctx context.Context, profileID string) ([]model.AttemptRecord, error)
}

type testPayload struct {
	Test      model.Test       `json:"test"`
	Questions []model.Question `json:"questions"`
}

// TestService creates, grades and closes attempts. Test payloads and answer
// keys are served from Redis and warmed from PostgreSQL on a miss.
type TestService struct {
	tests    TestStore
	attempts AttemptStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore, attempts AttemptStore, rdb *redis.Client, log zerolog.Logger) *TestService {
	return &TestService{
		tests:    tests,
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "test_service").Logger(),
		now:      time.Now,
	}
}

// StartTest records a new attempt for profileID and returns it with its
// question set. Correctness flags are never part of the returned questions.
func (s *TestService) StartTest(ctx context.Context, profileID string, testID int64) (model.Attempt, error) {
	payload, err := s.payload(ctx, testID)
	if err != nil {
		return model.Attempt{}, err
	}

	rec := &model.AttemptRecord{
		TestID:    testID,
		ProfileID: profileID,
		StartedAt: s.now().UTC(),
	}
	if err := s.attempts.Create(ctx, rec); err != nil {
		return model.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}

	answers := make([]model.QuestionAttempt, len(payload.Questions))
	for i, q := range payload.Questions {
		answers[i] = model.NewQuestionAttempt(q.ID)
	}

	s.log.Info().
		Str("attempt_id", rec.ID.String()).
		Str("profile_id", profileID).
		Int64("test_id", testID).
		Msg("Attempt started")

	return model.Attempt{
		ID:        rec.ID,
		TestID:    testID,
		ProfileID: profileID,
		Test:      payload.Test,
		Questions: payload.Questions,
		Answers:   answers,
		StartedAt: rec.StartedAt,
		Status:    model.AttemptStatusInProgress,
	}, nil
}

// FinishTest grades answers and queues the result for persistence. The attempt
// is closed atomically, so a second call returns ErrAttemptClosed. Any failure
// after closing reopens the attempt so the caller can retry.
func (s *TestService) FinishTest(ctx context.Context, attemptID uuid.UUID, answers []model.QuestionAttempt, elapsed int) (model.TestResult, error) {
	rec, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TestResult{}, ErrAttemptNotFound
		}
		return model.TestResult{}, fmt.Errorf("get attempt: %w", err)
	}

	won, err := s.attempts.MarkFinishing(ctx, attemptID)
	if err != nil {
		return model.TestResult{}, fmt.Errorf("close attempt: %w", err)
	}
	if !won {
		return model.TestResult{}, ErrAttemptClosed
	}

	result, err := s.grade(ctx, rec, answers, elapsed)
	if err != nil {
		s.reopen(attemptID)
		return model.TestResult{}, err
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Float64("score", result.Score).
		Msg("Attempt finished")

	return result, nil
}

func (s *TestService) grade(ctx context.Context, rec *model.AttemptRecord, answers []model.QuestionAttempt, elapsed int) (model.TestResult, error) {
	key, err := s.answerKey(ctx, rec.TestID)
	if err != nil {
		return model.TestResult{}, err
	}

	result := GradeAnswers(rec.ID, rec.TestID, key, answers, elapsed, s.now().UTC())

	job, err := json.Marshal(model.ResultJob{
		AttemptID:      result.AttemptID,
		Score:          result.Score,
		Correct:        result.Correct,
		ElapsedSeconds: result.ElapsedSeconds,
		FinishedAt:     result.FinishedAt,
	})
	if err != nil {
		return model.TestResult{}, fmt.Errorf("marshal result job: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, job).Err(); err != nil {
		return model.TestResult{}, fmt.Errorf("queue result: %w", err)
	}
	return result, nil
}

// reopen uses its own context so a cancelled request still releases the attempt.
func (s *TestService) reopen(attemptID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.attempts.RevertFinishing(ctx, attemptID); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to reopen attempt")
	}
}

// AbandonTest closes an in-progress attempt without a result.
func (s *TestService) AbandonTest(ctx context.Context, attemptID uuid.UUID) error {
	if err := s.attempts.Abandon(ctx, attemptID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptClosed
		}
		return fmt.Errorf("abandon attempt: %w", err)
	}
	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt abandoned")
	return nil
}

// ListAttempts returns a profile's attempts, newest first.
func (s *TestService) ListAttempts(ctx context.Context, profileID string) ([]model.AttemptRecord, error) {
	records, err := s.attempts.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if records == nil {
		records = []model.AttemptRecord{}
	}
	return records, nil
}

func (s *TestService) payload(ctx context.Context, testID int64) (*testPayload, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestPayloadKey(testID)).Bytes()
	if err == nil {
		var p testPayload
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		s.log.Warn().Int64("test_id", testID).Msg("Corrupt test payload in cache, rewarming")
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read test payload: %w", err)
	}

	p, _, err := s.warm(ctx, testID)
	return p, err
}

func (s *TestService) answerKey(ctx context.Context, testID int64) (AnswerKey, error) {
	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.TestAnswerKey(testID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read answer key: %w", err)
	}

	if len(fields) > 0 {
		key := make(AnswerKey, len(fields))
		for q, a := range fields {
			qid, qerr := strconv.ParseInt(q, 10, 64)
			aid, aerr := strconv.ParseInt(a, 10, 64)
			if qerr != nil || aerr != nil {
				key = nil
				break
			}
			key[qid] = aid
		}
		if key != nil {
			return key, nil
		}
		s.log.Warn().Int64("test_id", testID).Msg("Corrupt answer key in cache, rewarming")
	}

	_, key, err := s.warm(ctx, testID)
	return key, err
}

// warm loads a test from PostgreSQL and caches its payload and answer key.
// Cache write failures are logged; the loaded values are still returned.
func (s *TestService) warm(ctx context.Context, testID int64) (*testPayload, AnswerKey, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrTestNotFound
		}
		return nil, nil, fmt.Errorf("get test: %w", err)
	}

	questions, err := s.tests.ListQuestions(ctx, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrTestHasNoQuestions
	}

	key := BuildAnswerKey(questions)

	stripped := model.StripCorrectness(questions)
	test.QuestionCount = len(stripped)
	p := &testPayload{Test: *test, Questions: stripped}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal test payload: %w", err)
	}

	keyName := config.CacheKey.TestAnswerKey(testID)
	fields := make(map[string]interface{}, len(key))
	for q, a := range key {
		fields[strconv.FormatInt(q, 10)] = a
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.TestPayloadKey(testID), data, payloadTTL)
	pipe.Del(ctx, keyName)
	if len(fields) > 0 {
		pipe.HSet(ctx, keyName, fields)
		pipe.Expire(ctx, keyName, payloadTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int64("test_id", testID).Msg("Failed to cache test payload")
	}

	s.log.Debug().Int64("test_id", testID).Int("questions", len(stripped)).Msg("Test payload warmed")
	return p, key, nil
}
