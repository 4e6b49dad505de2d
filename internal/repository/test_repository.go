package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

// ErrNoRowsUpdated signals that a guarded UPDATE matched no rows.
var ErrNoRowsUpdated = errors.New("no rows updated")

// TestRepository handles practice test data access: the test row, its
// questions, and its answer slots.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test by ID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, course_id, user_id, title, status, score, started_at, completed_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.CourseID, &t.UserID, &t.Title, &t.Status, &t.Score, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindReusable retrieves the most recent non-cancelled test for the
// (learner, course, title) triple that actually has questions. Both
// in-progress and completed tests qualify: requesting practice again
// without forcing regeneration returns the same material.
func (r *TestRepository) FindReusable(ctx context.Context, userID, courseID uuid.UUID, title string) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.course_id, t.user_id, t.title, t.status, t.score, t.started_at, t.completed_at
		 FROM tests t
		 WHERE t.user_id = $1 AND t.course_id = $2 AND t.title = $3
		   AND t.status <> $4
		   AND EXISTS (SELECT 1 FROM questions q WHERE q.test_id = t.id)
		 ORDER BY t.started_at DESC
		 LIMIT 1`, userID, courseID, title, model.TestStatusCancelled,
	).Scan(&t.ID, &t.CourseID, &t.UserID, &t.Title, &t.Status, &t.Score, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateWithQuestions inserts a test, its questions, and one empty answer
// slot per question in a single transaction. The partial unique index on
// live tests makes concurrent creation race-safe: the loser gets
// pgx.ErrNoRows from the conflict clause and should refetch the winner.
func (r *TestRepository) CreateWithQuestions(ctx context.Context, t *model.Test, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO tests (course_id, user_id, title, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, course_id, title) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, started_at`,
		t.CourseID, t.UserID, t.Title, model.TestStatusInProgress,
	).Scan(&t.ID, &t.StartedAt)
	if err != nil {
		return err // pgx.ErrNoRows → concurrent creation lost the race
	}
	t.Status = model.TestStatusInProgress

	for i := range questions {
		q := &questions[i]
		q.TestID = t.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, type, prompt, options, correct_option, expected_answer, explanation, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			q.TestID, q.Type, q.Prompt, q.Options, q.CorrectOption, q.ExpectedAnswer, q.Explanation, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO test_answers (test_id, question_id) VALUES ($1, $2)`,
			t.ID, q.ID,
		); err != nil {
			return fmt.Errorf("insert answer slot %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// ListQuestions retrieves all questions of a test, ordered.
func (r *TestRepository) ListQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, type, prompt, options, correct_option, expected_answer, explanation, order_num
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Type, &q.Prompt, &q.Options,
			&q.CorrectOption, &q.ExpectedAnswer, &q.Explanation, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListAnswers retrieves all answer rows of a test.
func (r *TestRepository) ListAnswers(ctx context.Context, testID uuid.UUID) ([]model.TestAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_id, answer, is_correct
		 FROM test_answers WHERE test_id = $1`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.TestAnswer
	for rows.Next() {
		var a model.TestAnswer
		if err := rows.Scan(&a.ID, &a.TestID, &a.QuestionID, &a.Answer, &a.IsCorrect); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CompleteWithAnswers writes the graded answers and flips the test to
// COMPLETED with its score, all in one transaction. The status guard in the
// final UPDATE makes the IN_PROGRESS precondition a single-use lock: a
// concurrent submission that lost the race gets ErrNoRowsUpdated and the
// first submission's grades stay untouched.
func (r *TestRepository) CompleteWithAnswers(
	ctx context.Context,
	testID uuid.UUID,
	answers []model.TestAnswer,
	score float64,
	completedAt time.Time,
) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Take the lock first so answer writes from a losing submission never
	// land at all.
	tag, err := tx.Exec(ctx,
		`UPDATE tests
		 SET status = $1, score = $2, completed_at = $3
		 WHERE id = $4 AND status = $5`,
		model.TestStatusCompleted, score, completedAt, testID, model.TestStatusInProgress)
	if err != nil {
		return fmt.Errorf("complete test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}

	for _, a := range answers {
		tag, err := tx.Exec(ctx,
			`UPDATE test_answers
			 SET answer = $1, is_correct = $2
			 WHERE test_id = $3 AND question_id = $4`,
			a.Answer, a.IsCorrect, testID, a.QuestionID)
		if err != nil {
			return fmt.Errorf("write answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows // answer slot missing, question not in this test
		}
	}

	return tx.Commit(ctx)
}
