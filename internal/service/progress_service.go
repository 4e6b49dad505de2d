package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
	"github.com/dmitryplyaskin/pathwise-backend/internal/scheduler"
)

// ReviewStore is the lesson persistence the progress state machine needs.
type ReviewStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	UpdateReview(ctx context.Context, lessonID uuid.UUID, status model.ReviewStatus,
		intervalDays int, easeFactor float64, lastReviewedAt, nextReviewAt time.Time) error
}

// ProgressService is the lesson progress state machine: it composes the
// pure scheduling step with exactly one persistence write. No intermediate
// schedule state is ever observable.
type ProgressService struct {
	lessons ReviewStore
	log     zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(lessons ReviewStore, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		lessons: lessons,
		log:     log.With().Str("component", "progress_service").Logger(),
	}
}

// ApplyReview advances the lesson's schedule for a graded session score.
// All five review fields (status, interval, ease, last/next review) land in
// a single UPDATE.
func (s *ProgressService) ApplyReview(ctx context.Context, lessonID uuid.UUID, score float64, reviewedAt time.Time) (*scheduler.Schedule, error) {
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}

	next := scheduler.NextSchedule(scheduler.State{
		Status:       lesson.ReviewStatus,
		IntervalDays: lesson.IntervalDays,
		EaseFactor:   lesson.EaseFactor,
	}, score, reviewedAt)

	if err := s.lessons.UpdateReview(ctx, lessonID,
		next.Status, next.IntervalDays, next.EaseFactor, reviewedAt, next.NextReviewAt); err != nil {
		return nil, fmt.Errorf("update review state: %w", err)
	}

	s.log.Debug().
		Str("lesson_id", lessonID.String()).
		Float64("score", score).
		Str("status", string(next.Status)).
		Int("interval_days", next.IntervalDays).
		Float64("ease_factor", next.EaseFactor).
		Msg("Review schedule advanced")

	return &next, nil
}
