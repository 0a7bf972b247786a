package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// TestRepository handles test, question and answer data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves test metadata. Returns pgx.ErrNoRows when missing.
func (r *TestRepository) GetByID(ctx context.Context, id int64) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.title, t.description, t.available_time,
		        (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id)
		 FROM tests t
		 WHERE t.id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.AvailableTime, &t.QuestionCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListQuestions retrieves a test's questions in order, with graded answers.
func (r *TestRepository) ListQuestions(ctx context.Context, testID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.order_num, q.question_text, q.preamble, q.description, q.images,
		        a.id, a.answer_text, a.is_correct
		 FROM questions q
		 LEFT JOIN answers a ON a.question_id = q.id
		 WHERE q.test_id = $1
		 ORDER BY q.order_num ASC, q.id ASC, a.order_num ASC, a.id ASC`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q         model.Question
			answerID  *int64
			text      *string
			isCorrect *bool
		)
		if err := rows.Scan(&q.ID, &q.Index, &q.Text, &q.Preamble, &q.Description, &q.Images,
			&answerID, &text, &isCorrect); err != nil {
			return nil, err
		}

		if n := len(questions); n == 0 || questions[n-1].ID != q.ID {
			q.Answers = []model.Answer{}
			questions = append(questions, q)
		}
		if answerID != nil {
			last := &questions[len(questions)-1]
			a := model.Answer{ID: *answerID, IsCorrect: isCorrect}
			if text != nil {
				a.Text = *text
			}
			last.Answers = append(last.Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range questions {
		questions[i].Index = i
	}
	return questions, nil
}

// Create inserts a test with all of its questions and answers in one transaction.
func (r *TestRepository) Create(ctx context.Context, def *model.TestDefinition) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var testID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO tests (title, description, available_time)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		def.Title, def.Description, def.AvailableTime,
	).Scan(&testID); err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}

	for qi, q := range def.Questions {
		if err := insertQuestion(ctx, tx, testID, qi, q); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return testID, nil
}

func insertQuestion(ctx context.Context, tx pgx.Tx, testID int64, order int, q model.Question) error {
	images := q.Images
	if images == nil {
		images = []string{}
	}

	var questionID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO questions (test_id, order_num, question_text, preamble, description, images)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		testID, order, q.Text, q.Preamble, q.Description, images,
	).Scan(&questionID); err != nil {
		return fmt.Errorf("insert question %d: %w", order, err)
	}

	batch := &pgx.Batch{}
	for ai, a := range q.Answers {
		correct := a.IsCorrect != nil && *a.IsCorrect
		batch.Queue(
			`INSERT INTO answers (question_id, order_num, answer_text, is_correct) VALUES ($1, $2, $3, $4)`,
			questionID, ai, a.Text, correct,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert answers of question %d: %w", order, err)
	}
	return nil
}
