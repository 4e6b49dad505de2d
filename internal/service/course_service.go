package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
	"github.com/dmitryplyaskin/pathwise-backend/internal/repository"
)

// CourseService manages a learner's course catalog.
type CourseService struct {
	courses *repository.CourseRepository
}

func NewCourseService(courses *repository.CourseRepository) *CourseService {
	return &CourseService{courses: courses}
}

func (s *CourseService) CreateCourse(ctx context.Context, userID uuid.UUID, req model.CreateCourseRequest) (*model.Course, error) {
	course := &model.Course{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}

func (s *CourseService) ListCourses(ctx context.Context, userID uuid.UUID) ([]model.Course, error) {
	courses, err := s.courses.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetOwnedCourse returns a course only when it belongs to the user. A
// foreign course reads as not found.
func (s *CourseService) GetOwnedCourse(ctx context.Context, courseID, userID uuid.UUID) (*model.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: course", ErrNotFound)
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course.UserID != userID {
		return nil, fmt.Errorf("%w: course", ErrNotFound)
	}
	return course, nil
}
