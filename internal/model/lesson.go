package model

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus enumerates a lesson's place in the learning progression.
type ReviewStatus string

const (
	ReviewStatusNotStarted ReviewStatus = "NOT_STARTED"
	ReviewStatusLearning   ReviewStatus = "LEARNING"
	ReviewStatusMastered   ReviewStatus = "MASTERED"
)

// Lesson is a single unit of study content with its own review schedule.
// The review fields are mutated only by the progress service, in one write
// per graded submission.
type Lesson struct {
	ID             uuid.UUID    `json:"id"`
	CourseID       uuid.UUID    `json:"course_id"`
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	ReviewStatus   ReviewStatus `json:"review_status"`
	IntervalDays   int          `json:"interval_days"`
	EaseFactor     float64      `json:"ease_factor"`
	LastReviewedAt *time.Time   `json:"last_reviewed_at,omitempty"`
	NextReviewAt   *time.Time   `json:"next_review_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CreateLessonRequest is the payload for authoring a lesson.
type CreateLessonRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=255"`
	Content string `json:"content" binding:"required,min=1"`
}
