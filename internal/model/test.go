package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates practice test states.
type TestStatus string

const (
	TestStatusInProgress TestStatus = "IN_PROGRESS"
	TestStatusCompleted  TestStatus = "COMPLETED"
	TestStatusCancelled  TestStatus = "CANCELLED"
)

// PracticeTitlePrefix ties a practice test to its lesson by title.
// A practice test for lesson L is the test titled "Practice: " + L.Title
// inside the lesson's course.
const PracticeTitlePrefix = "Practice: "

// Test represents one graded attempt at a set of generated questions.
// The IN_PROGRESS → COMPLETED transition happens exactly once, atomically
// with score assignment.
type Test struct {
	ID          uuid.UUID  `json:"id"`
	CourseID    uuid.UUID  `json:"course_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Status      TestStatus `json:"status"`
	Score       *float64   `json:"score,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TestAnswer is the per-question result slot. One empty row is created per
// question when the test is created; submission fills it in, never resizes
// the set.
type TestAnswer struct {
	ID         uuid.UUID `json:"id"`
	TestID     uuid.UUID `json:"test_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Answer     *string   `json:"answer,omitempty"`
	IsCorrect  *bool     `json:"is_correct,omitempty"`
}

// StartPracticeRequest is the payload for requesting a practice test.
type StartPracticeRequest struct {
	QuestionCount int      `json:"question_count" binding:"omitempty,min=5,max=30"`
	QuestionTypes []string `json:"question_types" binding:"omitempty,dive,oneof=CHOICE FREE_TEXT"`
	ForceNew      bool     `json:"force_new"`
}

// SubmittedAnswer is one answer in a test submission. IsCorrect may carry a
// precomputed verdict from the interactive check endpoint; it is honored for
// free-text questions only.
type SubmittedAnswer struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer"`
	IsCorrect  *bool     `json:"is_correct"`
}

// SubmitTestRequest is the payload for submitting test results.
type SubmitTestRequest struct {
	Answers          []SubmittedAnswer `json:"answers" binding:"required,min=1,dive"`
	TimeSpentSeconds int               `json:"time_spent_seconds" binding:"min=0"`
}

// CheckAnswerRequest asks for an interactive verdict on a single free-text
// answer while the test is still in progress.
type CheckAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"required,max=10000"`
}
