package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dmitryplyaskin/pathwise-backend/internal/ai"
	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
	"github.com/dmitryplyaskin/pathwise-backend/internal/repository"
	"github.com/dmitryplyaskin/pathwise-backend/internal/scheduler"
)

// DefaultQuestionCount is used when the request does not specify one.
const DefaultQuestionCount = 5

const payloadCacheTTL = 24 * time.Hour

// LessonStore is the lesson access the practice flow needs.
type LessonStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	GetByCourseAndTitle(ctx context.Context, courseID uuid.UUID, title string) (*model.Lesson, error)
}

// CourseStore resolves course ownership.
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
}

// TestStore is the test aggregate persistence.
type TestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	FindReusable(ctx context.Context, userID, courseID uuid.UUID, title string) (*model.Test, error)
	CreateWithQuestions(ctx context.Context, t *model.Test, questions []model.Question) error
	ListQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
	CompleteWithAnswers(ctx context.Context, testID uuid.UUID, answers []model.TestAnswer, score float64, completedAt time.Time) error
}

// QuestionGenerator is the external content generator.
type QuestionGenerator interface {
	Generate(ctx context.Context, req ai.GenerateRequest) ([]ai.GeneratedQuestion, error)
}

// AnswerEvaluator grades a single answer.
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, q *model.Question, answer string) Evaluation
}

// ProgressUpdater advances a lesson's review schedule.
type ProgressUpdater interface {
	ApplyReview(ctx context.Context, lessonID uuid.UUID, score float64, reviewedAt time.Time) (*scheduler.Schedule, error)
}

// RepairQueue accepts schedule updates that failed after grading succeeded,
// for later retry by a background worker.
type RepairQueue interface {
	Enqueue(ctx context.Context, lessonID uuid.UUID, score float64, reviewedAt time.Time) error
}

// PracticePayload is the learner-facing view of a test. It never contains
// correct options or expected answers: redaction happens here, at the
// orchestrator boundary, not in the generator.
type PracticePayload struct {
	TestID    uuid.UUID                  `json:"test_id"`
	Title     string                     `json:"title"`
	Status    model.TestStatus           `json:"status"`
	Questions []model.QuestionForLearner `json:"questions"`
}

// SubmitResult is the outcome of a graded submission. ScheduleWarning is
// the degraded-success flag: the grade landed but the review schedule could
// not be updated and was queued for repair.
type SubmitResult struct {
	TestID           uuid.UUID            `json:"test_id"`
	Score            float64              `json:"score"`
	CorrectCount     int                  `json:"correct_count"`
	TotalCount       int                  `json:"total_count"`
	TimeSpentSeconds int                  `json:"time_spent_seconds"`
	CompletedAt      time.Time            `json:"completed_at"`
	Schedule         *scheduler.Schedule  `json:"schedule,omitempty"`
	ScheduleWarning  bool                 `json:"schedule_warning,omitempty"`
}

// PracticeService owns the assessment lifecycle: test get-or-create and
// reuse, grading and aggregation, and handing the score to the progress
// state machine.
type PracticeService struct {
	lessons   LessonStore
	courses   CourseStore
	tests     TestStore
	generator QuestionGenerator
	evaluator AnswerEvaluator
	progress  ProgressUpdater
	repairs   RepairQueue
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewPracticeService creates a new PracticeService. rdb may be nil; payload
// caching is then skipped.
func NewPracticeService(
	lessons LessonStore,
	courses CourseStore,
	tests TestStore,
	generator QuestionGenerator,
	evaluator AnswerEvaluator,
	progress ProgressUpdater,
	repairs RepairQueue,
	rdb *redis.Client,
	log zerolog.Logger,
) *PracticeService {
	return &PracticeService{
		lessons:   lessons,
		courses:   courses,
		tests:     tests,
		generator: generator,
		evaluator: evaluator,
		progress:  progress,
		repairs:   repairs,
		rdb:       rdb,
		log:       log.With().Str("component", "practice_service").Logger(),
	}
}

// StartPractice returns the practice test for a lesson, generating one if
// none exists. Calling it twice without ForceNew returns the same test with
// the same questions; ForceNew always generates a fresh test.
func (s *PracticeService) StartPractice(ctx context.Context, lessonID, userID uuid.UUID, req model.StartPracticeRequest) (*PracticePayload, error) {
	lesson, course, err := s.loadOwnedLesson(ctx, lessonID, userID)
	if err != nil {
		return nil, err
	}

	title := model.PracticeTitlePrefix + lesson.Title

	if !req.ForceNew {
		existing, err := s.tests.FindReusable(ctx, userID, course.ID, title)
		if err == nil {
			return s.buildPayload(ctx, existing)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find existing test: %w", err)
		}
	}

	count := req.QuestionCount
	if count == 0 {
		count = DefaultQuestionCount
	}

	generated, err := s.generator.Generate(ctx, ai.GenerateRequest{
		LessonTitle:   lesson.Title,
		LessonContent: lesson.Content,
		QuestionCount: count,
		QuestionTypes: parseQuestionTypes(req.QuestionTypes),
	})
	if err != nil {
		s.log.Error().Err(err).Str("lesson_id", lessonID.String()).Msg("Question generation failed")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	questions, err := buildQuestions(generated)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	test := &model.Test{CourseID: course.ID, UserID: userID, Title: title}
	if err := s.tests.CreateWithQuestions(ctx, test, questions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent creation lost the race on the live-test index;
			// fall back to the winner instead of surfacing a duplicate.
			winner, fetchErr := s.tests.FindReusable(ctx, userID, course.ID, title)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent creation detected, fetch winner: %w", fetchErr)
			}
			return s.buildPayload(ctx, winner)
		}
		return nil, fmt.Errorf("create test: %w", err)
	}

	s.log.Info().
		Str("test_id", test.ID.String()).
		Str("lesson_id", lessonID.String()).
		Int("questions", len(questions)).
		Bool("force_new", req.ForceNew).
		Msg("Practice test generated")

	payload := redact(test, questions)
	s.cachePayload(ctx, payload)
	return payload, nil
}

// CheckAnswer gives an interactive verdict on one free-text answer while
// the test is still in progress. Choice questions are excluded: checking
// them before submission would reveal the correct option.
func (s *PracticeService) CheckAnswer(ctx context.Context, testID, userID uuid.UUID, req model.CheckAnswerRequest) (*Evaluation, error) {
	test, err := s.loadOwnedTest(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusInProgress {
		return nil, fmt.Errorf("%w: test is %s", ErrInvalidState, test.Status)
	}

	questions, err := s.tests.ListQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		if q.ID != req.QuestionID {
			continue
		}
		if q.Type != model.QuestionTypeFreeText {
			return nil, fmt.Errorf("%w: only free-text answers can be checked mid-test", ErrInvalidState)
		}
		ev := s.evaluator.EvaluateAnswer(ctx, q, req.Answer)
		return &ev, nil
	}

	return nil, fmt.Errorf("%w: question does not belong to this test", ErrNotFound)
}

// SubmitResults grades a submission, completes the test atomically with its
// score, and advances the owning lesson's review schedule.
//
// The score denominator is the submitted answer count: a skipped question
// counts against the learner only when submitted as an empty answer, which
// clients are expected to do. (Product decision preserved as-is.)
//
// If the schedule update fails after grading succeeded, the grade is NOT
// rolled back: the result carries ScheduleWarning and the update is queued
// for background repair, because re-running the submission would
// double-count the grade.
func (s *PracticeService) SubmitResults(ctx context.Context, testID, userID uuid.UUID, req model.SubmitTestRequest) (*SubmitResult, error) {
	test, err := s.loadOwnedTest(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusInProgress {
		return nil, fmt.Errorf("%w: test is %s", ErrInvalidState, test.Status)
	}
	if len(req.Answers) == 0 {
		return nil, fmt.Errorf("%w: submission has no answers", ErrInvalidState)
	}

	questions, err := s.tests.ListQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	graded := make([]model.TestAnswer, 0, len(req.Answers))
	seen := make(map[uuid.UUID]struct{}, len(req.Answers))
	correctCount := 0

	for _, sub := range req.Answers {
		q, ok := byID[sub.QuestionID]
		if !ok {
			// A submitted answer for a foreign question is a hard error,
			// never silently dropped.
			return nil, fmt.Errorf("%w: question %s does not belong to this test", ErrNotFound, sub.QuestionID)
		}
		if _, dup := seen[sub.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate answer for question %s", ErrInvalidState, sub.QuestionID)
		}
		seen[sub.QuestionID] = struct{}{}

		isCorrect := s.gradeAnswer(ctx, q, sub)
		if isCorrect {
			correctCount++
		}

		answer := sub.Answer
		graded = append(graded, model.TestAnswer{
			TestID:     testID,
			QuestionID: sub.QuestionID,
			Answer:     &answer,
			IsCorrect:  &isCorrect,
		})
	}

	totalCount := len(graded)
	score := 100 * float64(correctCount) / float64(totalCount)
	completedAt := time.Now()

	if err := s.tests.CompleteWithAnswers(ctx, testID, graded, score, completedAt); err != nil {
		switch {
		case errors.Is(err, repository.ErrNoRowsUpdated):
			// Lost the single-use lock to a concurrent submission.
			return nil, fmt.Errorf("%w: test was completed concurrently", ErrInvalidState)
		case errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("%w: answer slot missing", ErrNotFound)
		default:
			return nil, fmt.Errorf("complete test: %w", err)
		}
	}

	result := &SubmitResult{
		TestID:           testID,
		Score:            score,
		CorrectCount:     correctCount,
		TotalCount:       totalCount,
		TimeSpentSeconds: req.TimeSpentSeconds,
		CompletedAt:      completedAt,
	}

	s.applySchedule(ctx, test, score, completedAt, result)

	s.log.Info().
		Str("test_id", testID.String()).
		Float64("score", score).
		Int("correct", correctCount).
		Int("total", totalCount).
		Bool("schedule_warning", result.ScheduleWarning).
		Msg("Test submitted")

	return result, nil
}

// gradeAnswer resolves one submitted answer to a verdict. Choice answers
// are always re-graded server-side: a client-supplied verdict would let the
// client award itself points. Free-text answers honor a precomputed verdict
// from the check endpoint, falling back to fresh evaluation otherwise.
func (s *PracticeService) gradeAnswer(ctx context.Context, q *model.Question, sub model.SubmittedAnswer) bool {
	if q.Type == model.QuestionTypeChoice {
		return sub.Answer == q.CorrectOption
	}
	if sub.IsCorrect != nil {
		return *sub.IsCorrect
	}
	return s.evaluator.EvaluateAnswer(ctx, q, sub.Answer).IsCorrect
}

// applySchedule runs the progress state machine for the graded test. A
// failure here is the degraded-success path: grading already committed, so
// the error becomes a warning plus a repair-queue entry.
func (s *PracticeService) applySchedule(ctx context.Context, test *model.Test, score float64, completedAt time.Time, result *SubmitResult) {
	lessonTitle := strings.TrimPrefix(test.Title, model.PracticeTitlePrefix)

	lesson, err := s.lessons.GetByCourseAndTitle(ctx, test.CourseID, lessonTitle)
	if err != nil {
		s.log.Error().Err(err).
			Str("test_id", test.ID.String()).
			Str("lesson_title", lessonTitle).
			Msg("Graded test has no resolvable lesson, schedule not updated")
		result.ScheduleWarning = true
		return
	}

	schedule, err := s.progress.ApplyReview(ctx, lesson.ID, score, completedAt)
	if err == nil {
		result.Schedule = schedule
		return
	}

	s.log.Error().Err(err).
		Str("test_id", test.ID.String()).
		Str("lesson_id", lesson.ID.String()).
		Msg("Schedule update failed after grading, queueing repair")
	result.ScheduleWarning = true

	if s.repairs != nil {
		if qErr := s.repairs.Enqueue(ctx, lesson.ID, score, completedAt); qErr != nil {
			s.log.Error().Err(qErr).
				Str("lesson_id", lesson.ID.String()).
				Msg("Failed to enqueue schedule repair")
		}
	}
}

func (s *PracticeService) loadOwnedLesson(ctx context.Context, lessonID, userID uuid.UUID) (*model.Lesson, *model.Course, error) {
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: lesson", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("get lesson: %w", err)
	}

	course, err := s.courses.GetByID(ctx, lesson.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("get course: %w", err)
	}
	// Ownership failures read as absence; existence is not leaked.
	if course.UserID != userID {
		return nil, nil, fmt.Errorf("%w: lesson", ErrNotFound)
	}

	return lesson, course, nil
}

func (s *PracticeService) loadOwnedTest(ctx context.Context, testID, userID uuid.UUID) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: test", ErrNotFound)
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if test.UserID != userID {
		return nil, fmt.Errorf("%w: test", ErrNotFound)
	}
	return test, nil
}

func (s *PracticeService) buildPayload(ctx context.Context, test *model.Test) (*PracticePayload, error) {
	if cached := s.cachedPayload(ctx, test.ID); cached != nil {
		// Status comes from the row, not the cache: a completed test may
		// still have its in-progress payload cached.
		cached.Status = test.Status
		return cached, nil
	}

	questions, err := s.tests.ListQuestions(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	payload := redact(test, questions)
	s.cachePayload(ctx, payload)
	return payload, nil
}

// redact builds the learner-facing payload, stripping all grading material.
func redact(test *model.Test, questions []model.Question) *PracticePayload {
	forLearner := make([]model.QuestionForLearner, len(questions))
	for i := range questions {
		forLearner[i] = questions[i].ForLearner()
	}
	return &PracticePayload{
		TestID:    test.ID,
		Title:     test.Title,
		Status:    test.Status,
		Questions: forLearner,
	}
}

func (s *PracticeService) cachedPayload(ctx context.Context, testID uuid.UUID) *PracticePayload {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestPayloadKey(testID.String())).Result()
	if err != nil {
		return nil // cache miss or redis trouble; fall through to postgres
	}
	var payload PracticePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return &payload
}

func (s *PracticeService) cachePayload(ctx context.Context, payload *PracticePayload) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.TestPayloadKey(payload.TestID.String()), raw, payloadCacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache test payload")
	}
}

// buildQuestions maps validated generator output onto persistence entities.
func buildQuestions(generated []ai.GeneratedQuestion) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(generated))
	for i, g := range generated {
		q := model.Question{
			Type:        g.Type,
			Prompt:      g.Prompt,
			Explanation: g.Explanation,
			OrderNum:    i,
		}
		switch g.Type {
		case model.QuestionTypeChoice:
			opts, err := json.Marshal(g.Options)
			if err != nil {
				return nil, fmt.Errorf("marshal options: %w", err)
			}
			q.Options = opts
			q.CorrectOption = g.Options[g.CorrectIndex]
		case model.QuestionTypeFreeText:
			q.ExpectedAnswer = g.ExpectedAnswer
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func parseQuestionTypes(raw []string) []model.QuestionType {
	types := make([]model.QuestionType, 0, len(raw))
	for _, t := range raw {
		types = append(types, model.QuestionType(t))
	}
	return types
}
