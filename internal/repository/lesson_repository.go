package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

// LessonRepository handles lesson data access, including the review
// schedule fields.
type LessonRepository struct {
	pool *pgxpool.Pool
}

// NewLessonRepository creates a new LessonRepository.
func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

const lessonColumns = `id, course_id, title, content, review_status, interval_days,
	ease_factor, last_reviewed_at, next_review_at, created_at, updated_at`

func scanLesson(row interface{ Scan(dest ...any) error }) (*model.Lesson, error) {
	l := &model.Lesson{}
	err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.Content, &l.ReviewStatus,
		&l.IntervalDays, &l.EaseFactor, &l.LastReviewedAt, &l.NextReviewAt,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetByID retrieves a lesson by ID.
func (r *LessonRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	return scanLesson(r.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
}

// GetByCourseAndTitle retrieves a lesson in a course by its exact title.
// Used to resolve the owning lesson from a practice test's title.
func (r *LessonRepository) GetByCourseAndTitle(ctx context.Context, courseID uuid.UUID, title string) (*model.Lesson, error) {
	return scanLesson(r.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons
		 WHERE course_id = $1 AND title = $2
		 ORDER BY created_at LIMIT 1`, courseID, title))
}

// ListByCourse retrieves all lessons of a course in authoring order.
func (r *LessonRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.Lesson, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lessonColumns+` FROM lessons
		 WHERE course_id = $1
		 ORDER BY created_at`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, *l)
	}
	return lessons, rows.Err()
}

// ListDue retrieves a learner's lessons that are due for review: either
// never reviewed or past their next_review_at. Most overdue first.
func (r *LessonRepository) ListDue(ctx context.Context, userID uuid.UUID, now time.Time, limit int) ([]model.Lesson, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.course_id, l.title, l.content, l.review_status, l.interval_days,
		        l.ease_factor, l.last_reviewed_at, l.next_review_at, l.created_at, l.updated_at
		 FROM lessons l
		 JOIN courses c ON l.course_id = c.id
		 WHERE c.user_id = $1
		   AND (l.next_review_at IS NULL OR l.next_review_at <= $2)
		 ORDER BY l.next_review_at ASC NULLS FIRST
		 LIMIT $3`, userID, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, *l)
	}
	return lessons, rows.Err()
}

// Create inserts a new lesson with a fresh review state.
func (r *LessonRepository) Create(ctx context.Context, l *model.Lesson) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO lessons (course_id, title, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, review_status, interval_days, ease_factor, created_at, updated_at`,
		l.CourseID, l.Title, l.Content,
	).Scan(&l.ID, &l.ReviewStatus, &l.IntervalDays, &l.EaseFactor, &l.CreatedAt, &l.UpdatedAt)
}

// UpdateReview writes the full review state in one statement. This is the
// single side-effecting step of the progress state machine; no partial
// schedule update is ever visible.
func (r *LessonRepository) UpdateReview(
	ctx context.Context,
	lessonID uuid.UUID,
	status model.ReviewStatus,
	intervalDays int,
	easeFactor float64,
	lastReviewedAt time.Time,
	nextReviewAt time.Time,
) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lessons
		 SET review_status = $1, interval_days = $2, ease_factor = $3,
		     last_reviewed_at = $4, next_review_at = $5, updated_at = NOW()
		 WHERE id = $6`,
		status, intervalDays, easeFactor, lastReviewedAt, nextReviewAt, lessonID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}
