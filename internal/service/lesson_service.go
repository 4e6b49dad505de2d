package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
	"github.com/dmitryplyaskin/pathwise-backend/internal/repository"
)

// DefaultDueLimit caps the review queue when the client does not ask for a
// specific size.
const DefaultDueLimit = 20

// LessonService manages lessons within a learner's courses and the due
// review queue.
type LessonService struct {
	lessons *repository.LessonRepository
	courses *CourseService
}

func NewLessonService(lessons *repository.LessonRepository, courses *CourseService) *LessonService {
	return &LessonService{lessons: lessons, courses: courses}
}

func (s *LessonService) CreateLesson(ctx context.Context, courseID, userID uuid.UUID, req model.CreateLessonRequest) (*model.Lesson, error) {
	if _, err := s.courses.GetOwnedCourse(ctx, courseID, userID); err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		CourseID: courseID,
		Title:    req.Title,
		Content:  req.Content,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return lesson, nil
}

func (s *LessonService) ListLessons(ctx context.Context, courseID, userID uuid.UUID) ([]model.Lesson, error) {
	if _, err := s.courses.GetOwnedCourse(ctx, courseID, userID); err != nil {
		return nil, err
	}
	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// ListDue returns the user's lessons that are ready for review, oldest
// first. Lessons never reviewed sort ahead of scheduled ones.
func (s *LessonService) ListDue(ctx context.Context, userID uuid.UUID, limit int) ([]model.Lesson, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	lessons, err := s.lessons.ListDue(ctx, userID, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due lessons: %w", err)
	}
	return lessons, nil
}
