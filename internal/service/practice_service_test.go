package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitryplyaskin/pathwise-backend/internal/ai"
	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
	"github.com/dmitryplyaskin/pathwise-backend/internal/repository"
	"github.com/dmitryplyaskin/pathwise-backend/internal/scheduler"
)

type fakeLessonStore struct {
	byID     map[uuid.UUID]*model.Lesson
	titleErr error
}

func (f *fakeLessonStore) GetByID(_ context.Context, id uuid.UUID) (*model.Lesson, error) {
	if l, ok := f.byID[id]; ok {
		return l, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeLessonStore) GetByCourseAndTitle(_ context.Context, courseID uuid.UUID, title string) (*model.Lesson, error) {
	if f.titleErr != nil {
		return nil, f.titleErr
	}
	for _, l := range f.byID {
		if l.CourseID == courseID && l.Title == title {
			return l, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeCourseStore struct {
	byID map[uuid.UUID]*model.Course
}

func (f *fakeCourseStore) GetByID(_ context.Context, id uuid.UUID) (*model.Course, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeTestStore struct {
	tests     map[uuid.UUID]*model.Test
	questions map[uuid.UUID][]model.Question

	reusable  *model.Test
	createErr error

	completed   []completedTest
	completeErr error
}

type completedTest struct {
	testID  uuid.UUID
	answers []model.TestAnswer
	score   float64
}

func (f *fakeTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	if t, ok := f.tests[id]; ok {
		return t, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTestStore) FindReusable(_ context.Context, userID, courseID uuid.UUID, title string) (*model.Test, error) {
	if f.reusable != nil && f.reusable.UserID == userID &&
		f.reusable.CourseID == courseID && f.reusable.Title == title {
		return f.reusable, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTestStore) CreateWithQuestions(_ context.Context, t *model.Test, questions []model.Question) error {
	if f.createErr != nil {
		return f.createErr
	}
	t.ID = uuid.New()
	t.Status = model.TestStatusInProgress
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].TestID = t.ID
	}
	if f.tests == nil {
		f.tests = map[uuid.UUID]*model.Test{}
	}
	if f.questions == nil {
		f.questions = map[uuid.UUID][]model.Question{}
	}
	f.tests[t.ID] = t
	f.questions[t.ID] = questions
	return nil
}

func (f *fakeTestStore) ListQuestions(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	return f.questions[testID], nil
}

func (f *fakeTestStore) CompleteWithAnswers(_ context.Context, testID uuid.UUID, answers []model.TestAnswer, score float64, _ time.Time) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, completedTest{testID: testID, answers: answers, score: score})
	if t, ok := f.tests[testID]; ok {
		t.Status = model.TestStatusCompleted
	}
	return nil
}

type fakeGenerator struct {
	questions []ai.GeneratedQuestion
	err       error
	calls     int
	lastReq   ai.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req ai.GenerateRequest) ([]ai.GeneratedQuestion, error) {
	f.calls++
	f.lastReq = req
	return f.questions, f.err
}

type fakeEvaluator struct {
	verdicts map[uuid.UUID]Evaluation
	calls    int
}

func (f *fakeEvaluator) EvaluateAnswer(_ context.Context, q *model.Question, _ string) Evaluation {
	f.calls++
	if ev, ok := f.verdicts[q.ID]; ok {
		return ev
	}
	return Evaluation{}
}

type fakeProgress struct {
	schedule *scheduler.Schedule
	err      error
	calls    []progressCall
}

type progressCall struct {
	lessonID uuid.UUID
	score    float64
}

func (f *fakeProgress) ApplyReview(_ context.Context, lessonID uuid.UUID, score float64, _ time.Time) (*scheduler.Schedule, error) {
	f.calls = append(f.calls, progressCall{lessonID: lessonID, score: score})
	if f.err != nil {
		return nil, f.err
	}
	return f.schedule, nil
}

type fakeRepairQueue struct {
	enqueued []progressCall
	err      error
}

func (f *fakeRepairQueue) Enqueue(_ context.Context, lessonID uuid.UUID, score float64, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, progressCall{lessonID: lessonID, score: score})
	return nil
}

type practiceFixture struct {
	svc       *PracticeService
	lessons   *fakeLessonStore
	tests     *fakeTestStore
	generator *fakeGenerator
	evaluator *fakeEvaluator
	progress  *fakeProgress
	repairs   *fakeRepairQueue

	userID   uuid.UUID
	courseID uuid.UUID
	lessonID uuid.UUID
}

func newPracticeFixture() *practiceFixture {
	userID := uuid.New()
	courseID := uuid.New()
	lessonID := uuid.New()

	lessons := &fakeLessonStore{byID: map[uuid.UUID]*model.Lesson{
		lessonID: {ID: lessonID, CourseID: courseID, Title: "Cell Biology", Content: "Cells are the basic unit of life."},
	}}
	courses := &fakeCourseStore{byID: map[uuid.UUID]*model.Course{
		courseID: {ID: courseID, UserID: userID, Title: "Biology 101"},
	}}
	tests := &fakeTestStore{tests: map[uuid.UUID]*model.Test{}, questions: map[uuid.UUID][]model.Question{}}
	generator := &fakeGenerator{questions: []ai.GeneratedQuestion{
		{
			Type:         model.QuestionTypeChoice,
			Prompt:       "What is the basic unit of life?",
			Options:      []string{"The cell", "The atom", "The organ"},
			CorrectIndex: 0,
			Explanation:  "Cells are the basic unit of life.",
		},
		{
			Type:           model.QuestionTypeFreeText,
			Prompt:         "Explain what a cell membrane does.",
			ExpectedAnswer: "It controls what enters and leaves the cell.",
			Explanation:    "The membrane is selectively permeable.",
		},
	}}
	evaluator := &fakeEvaluator{verdicts: map[uuid.UUID]Evaluation{}}
	progress := &fakeProgress{schedule: &scheduler.Schedule{
		Status:       model.ReviewStatusLearning,
		IntervalDays: 1,
		EaseFactor:   2.5,
		NextReviewAt: time.Now().AddDate(0, 0, 1),
	}}
	repairs := &fakeRepairQueue{}

	svc := NewPracticeService(lessons, courses, tests, generator, evaluator, progress, repairs, nil, zerolog.Nop())

	return &practiceFixture{
		svc:       svc,
		lessons:   lessons,
		tests:     tests,
		generator: generator,
		evaluator: evaluator,
		progress:  progress,
		repairs:   repairs,
		userID:    userID,
		courseID:  courseID,
		lessonID:  lessonID,
	}
}

func TestStartPracticeGeneratesAndRedacts(t *testing.T) {
	fx := newPracticeFixture()

	payload, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)

	assert.Equal(t, "Practice: Cell Biology", payload.Title)
	assert.Equal(t, model.TestStatusInProgress, payload.Status)
	require.Len(t, payload.Questions, 2)

	// Grading material is stored but never serialized toward the learner.
	stored := fx.tests.questions[payload.TestID]
	require.Len(t, stored, 2)
	assert.Equal(t, "The cell", stored[0].CorrectOption)
	assert.NotEmpty(t, stored[1].ExpectedAnswer)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_option")
	assert.NotContains(t, string(raw), "expected_answer")
	assert.NotNil(t, payload.Questions[0].Options)
}

func TestStartPracticeReusesLiveTest(t *testing.T) {
	fx := newPracticeFixture()

	first, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)

	fx.tests.reusable = fx.tests.tests[first.TestID]

	second, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)

	assert.Equal(t, first.TestID, second.TestID)
	assert.Equal(t, 1, fx.generator.calls, "reuse must not regenerate")
}

func TestStartPracticeForceNewSkipsReuse(t *testing.T) {
	fx := newPracticeFixture()

	first, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)
	fx.tests.reusable = fx.tests.tests[first.TestID]

	second, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{ForceNew: true})
	require.NoError(t, err)

	assert.NotEqual(t, first.TestID, second.TestID)
	assert.Equal(t, 2, fx.generator.calls)
}

func TestStartPracticeConcurrentCreationFallsBackToWinner(t *testing.T) {
	fx := newPracticeFixture()

	winner := &model.Test{
		ID:       uuid.New(),
		CourseID: fx.courseID,
		UserID:   fx.userID,
		Title:    "Practice: Cell Biology",
		Status:   model.TestStatusInProgress,
	}
	fx.tests.tests[winner.ID] = winner
	fx.tests.questions[winner.ID] = []model.Question{{ID: uuid.New(), TestID: winner.ID, Type: model.QuestionTypeChoice}}
	fx.tests.createErr = pgx.ErrNoRows

	// ForceNew skips the reuse lookup, loses the insert race, and must
	// surface the concurrent winner instead of erroring.
	fx.tests.reusable = winner
	payload, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{ForceNew: true})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, payload.TestID)
}

func TestStartPracticeGenerationFailure(t *testing.T) {
	fx := newPracticeFixture()
	fx.generator.err = errors.New("upstream timeout")

	_, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Empty(t, fx.tests.tests, "no partial test on generation failure")
}

func TestStartPracticeForeignLessonReadsAsNotFound(t *testing.T) {
	fx := newPracticeFixture()

	_, err := fx.svc.StartPractice(context.Background(), fx.lessonID, uuid.New(), model.StartPracticeRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, fx.generator.calls)
}

func TestStartPracticeDefaultQuestionCount(t *testing.T) {
	fx := newPracticeFixture()

	_, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)
	assert.Equal(t, DefaultQuestionCount, fx.generator.lastReq.QuestionCount)

	_, err = fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID,
		model.StartPracticeRequest{QuestionCount: 10, ForceNew: true})
	require.NoError(t, err)
	assert.Equal(t, 10, fx.generator.lastReq.QuestionCount)
}

func startedTest(t *testing.T, fx *practiceFixture) (*model.Test, []model.Question) {
	t.Helper()
	payload, err := fx.svc.StartPractice(context.Background(), fx.lessonID, fx.userID, model.StartPracticeRequest{})
	require.NoError(t, err)
	return fx.tests.tests[payload.TestID], fx.tests.questions[payload.TestID]
}

func TestSubmitResultsScoreLaw(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	correct := true
	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
		{QuestionID: questions[1].ID, Answer: "It regulates transport.", IsCorrect: &correct},
	}, TimeSpentSeconds: 120}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 120, result.TimeSpentSeconds)
	assert.False(t, result.ScheduleWarning)
	require.NotNil(t, result.Schedule)

	require.Len(t, fx.tests.completed, 1)
	assert.Equal(t, 100.0, fx.tests.completed[0].score)

	require.Len(t, fx.progress.calls, 1)
	assert.Equal(t, fx.lessonID, fx.progress.calls[0].lessonID)
	assert.Equal(t, 100.0, fx.progress.calls[0].score)
}

func TestSubmitResultsChoiceRegradedServerSide(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	// A client-supplied verdict on a choice answer is ignored: the wrong
	// option stays wrong.
	lie := true
	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The atom", IsCorrect: &lie},
	}}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, 0, result.CorrectCount)
}

func TestSubmitResultsFreeTextFallsBackToEvaluator(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	fx.evaluator.verdicts[questions[1].ID] = Evaluation{IsCorrect: true, Score: 90}

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[1].ID, Answer: "It controls transport across the boundary."},
	}}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.evaluator.calls)
	assert.Equal(t, 100.0, result.Score)
}

func TestSubmitResultsPartialSubmissionDenominator(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	// Only one of two questions submitted: the denominator is the
	// submitted count, not the question count.
	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
	}}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, 1, result.TotalCount)
}

func TestSubmitResultsAlienQuestionRejected(t *testing.T) {
	fx := newPracticeFixture()
	test, _ := startedTest(t, fx)

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: uuid.New(), Answer: "anything"},
	}}

	_, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, fx.tests.completed)
}

func TestSubmitResultsDuplicateAnswerRejected(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
		{QuestionID: questions[0].ID, Answer: "The atom"},
	}}

	_, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitResultsCompletedTestRejected(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)
	test.Status = model.TestStatusCompleted

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
	}}

	_, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitResultsConcurrentCompletionLosesLock(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)
	fx.tests.completeErr = repository.ErrNoRowsUpdated

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
	}}

	_, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, fx.progress.calls, "no schedule update without the completion lock")
}

func TestSubmitResultsDegradedSuccessQueuesRepair(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)
	fx.progress.err = errors.New("connection reset")

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
	}}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err, "grading already committed, schedule failure is not an error")

	assert.True(t, result.ScheduleWarning)
	assert.Nil(t, result.Schedule)
	assert.Equal(t, 100.0, result.Score)

	require.Len(t, fx.repairs.enqueued, 1)
	assert.Equal(t, fx.lessonID, fx.repairs.enqueued[0].lessonID)
	assert.Equal(t, 100.0, fx.repairs.enqueued[0].score)
}

func TestSubmitResultsUnresolvableLessonWarnsWithoutRepair(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)
	fx.lessons.titleErr = pgx.ErrNoRows

	req := model.SubmitTestRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: questions[0].ID, Answer: "The cell"},
	}}

	result, err := fx.svc.SubmitResults(context.Background(), test.ID, fx.userID, req)
	require.NoError(t, err)

	assert.True(t, result.ScheduleWarning)
	assert.Empty(t, fx.progress.calls)
	assert.Empty(t, fx.repairs.enqueued, "no lesson id means nothing to repair")
}

func TestCheckAnswerFreeTextOnly(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	fx.evaluator.verdicts[questions[1].ID] = Evaluation{IsCorrect: true, Score: 88}

	ev, err := fx.svc.CheckAnswer(context.Background(), test.ID, fx.userID, model.CheckAnswerRequest{
		QuestionID: questions[1].ID,
		Answer:     "It controls what passes through.",
	})
	require.NoError(t, err)
	assert.True(t, ev.IsCorrect)
	assert.Equal(t, 88.0, ev.Score)

	// Choice questions cannot be checked mid-test.
	_, err = fx.svc.CheckAnswer(context.Background(), test.ID, fx.userID, model.CheckAnswerRequest{
		QuestionID: questions[0].ID,
		Answer:     "The cell",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckAnswerCompletedTestRejected(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)
	test.Status = model.TestStatusCompleted

	_, err := fx.svc.CheckAnswer(context.Background(), test.ID, fx.userID, model.CheckAnswerRequest{
		QuestionID: questions[1].ID,
		Answer:     "anything",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckAnswerForeignTestReadsAsNotFound(t *testing.T) {
	fx := newPracticeFixture()
	test, questions := startedTest(t, fx)

	_, err := fx.svc.CheckAnswer(context.Background(), test.ID, uuid.New(), model.CheckAnswerRequest{
		QuestionID: questions[1].ID,
		Answer:     "anything",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
