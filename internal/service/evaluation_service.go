package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dmitryplyaskin/pathwise-backend/internal/ai"
	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

// Fallback heuristic parameters: a free-text answer graded without the
// judge is correct when at least this fraction of the expected answer's
// keyword tokens (longer than keywordMinLen runes) appears in it and the
// answer itself is at least minAnswerLen characters.
const (
	fallbackOverlapThreshold = 0.3
	fallbackKeywordMinLen    = 3
	fallbackMinAnswerLen     = 10
	fallbackCorrectScore     = 85
	fallbackIncorrectScore   = 30
)

const (
	fallbackExplanation = "Automatic grading was unavailable; the answer was checked against key terms of the expected answer."
	fallbackFeedback    = "Compare your answer with the explanation to make sure you covered the main points."
)

// Judge is the external free-text grader.
type Judge interface {
	Evaluate(ctx context.Context, prompt, expectedAnswer, learnerAnswer string) (ai.Judgement, error)
}

// Evaluation is the verdict on a single answer.
type Evaluation struct {
	IsCorrect   bool    `json:"is_correct"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
	Feedback    string  `json:"feedback,omitempty"`
}

// EvaluationService grades answers. Choice answers are graded by exact
// match against the stored correct option. Free-text answers go to the
// judge; a judge failure degrades to the keyword heuristic instead of
// awarding free correctness.
type EvaluationService struct {
	judge Judge
	log   zerolog.Logger
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(judge Judge, log zerolog.Logger) *EvaluationService {
	return &EvaluationService{
		judge: judge,
		log:   log.With().Str("component", "evaluation_service").Logger(),
	}
}

// EvaluateAnswer grades one answer for its question. It never returns an
// error: choice grading is deterministic and free-text grading always
// produces a verdict, degraded or not.
func (s *EvaluationService) EvaluateAnswer(ctx context.Context, q *model.Question, answer string) Evaluation {
	if q.Type == model.QuestionTypeChoice {
		correct := answer == q.CorrectOption
		score := 0.0
		if correct {
			score = 100
		}
		return Evaluation{IsCorrect: correct, Score: score, Explanation: q.Explanation}
	}

	judgement, err := s.judge.Evaluate(ctx, q.Prompt, q.ExpectedAnswer, answer)
	if err != nil {
		s.log.Warn().Err(err).
			Str("question_id", q.ID.String()).
			Msg("Judge unavailable, falling back to keyword heuristic")
		return fallbackEvaluate(q.ExpectedAnswer, answer)
	}

	return Evaluation{
		IsCorrect:   judgement.IsCorrect,
		Score:       judgement.Score,
		Explanation: judgement.Explanation,
		Feedback:    judgement.Feedback,
	}
}

// fallbackEvaluate is the judge-outage heuristic: lower-cased whitespace
// tokens longer than three characters from the expected answer are treated
// as keywords, and the answer passes when enough of them appear in it.
func fallbackEvaluate(expectedAnswer, answer string) Evaluation {
	keywords := keywordTokens(expectedAnswer)
	answerSet := make(map[string]struct{})
	for _, tok := range keywordTokens(answer) {
		answerSet[tok] = struct{}{}
	}

	matched := 0
	for _, kw := range keywords {
		if _, ok := answerSet[kw]; ok {
			matched++
		}
	}

	overlap := 0.0
	if len(keywords) > 0 {
		overlap = float64(matched) / float64(len(keywords))
	}

	correct := overlap >= fallbackOverlapThreshold && len(answer) >= fallbackMinAnswerLen

	score := float64(fallbackIncorrectScore)
	if correct {
		score = fallbackCorrectScore
	}

	return Evaluation{
		IsCorrect:   correct,
		Score:       score,
		Explanation: fallbackExplanation,
		Feedback:    fallbackFeedback,
	}
}

// keywordTokens returns the deduplicated lower-case tokens longer than
// fallbackKeywordMinLen, in first-seen order.
func keywordTokens(text string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(tok)) <= fallbackKeywordMinLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}
