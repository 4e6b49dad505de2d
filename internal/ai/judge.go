package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Judgement is the judge's verdict on one free-text answer.
type Judgement struct {
	IsCorrect   bool    `json:"is_correct"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
	Feedback    string  `json:"feedback"`
}

// Judge scores a learner's free-text answer against the expected answer.
type Judge struct {
	completer Completer
	timeout   time.Duration
}

// NewJudge creates a Judge with a per-call timeout.
func NewJudge(completer Completer, timeout time.Duration) *Judge {
	return &Judge{completer: completer, timeout: timeout}
}

const judgeSystemPrompt = `You grade short free-text answers for a learning platform.
Compare the learner's answer with the expected answer for the given question.
Accept paraphrases and partial wording as long as the meaning matches.
Respond with a single JSON object:
{"is_correct":true|false,"score":0-100,"explanation":"why","feedback":"one encouraging sentence for the learner"}`

// Evaluate asks the judge for a verdict. Transport errors and unparseable
// responses are returned to the caller, which is expected to fall back to a
// local heuristic; a judge outage must never award correctness by itself.
func (j *Judge) Evaluate(ctx context.Context, prompt, expectedAnswer, learnerAnswer string) (Judgement, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(
		"Question:\n%s\n\nExpected answer:\n%s\n\nLearner's answer:\n%s\n",
		prompt, expectedAnswer, learnerAnswer,
	)

	raw, err := j.completer.Complete(ctx, judgeSystemPrompt, userPrompt)
	if err != nil {
		return Judgement{}, fmt.Errorf("judge answer: %w", err)
	}

	return ParseJudgement(raw)
}

// rawJudgement tolerates the loose field typing LLMs produce: a missing or
// non-boolean is_correct and a missing or out-of-range score are both
// derivable from the other field.
type rawJudgement struct {
	IsCorrect   *bool    `json:"is_correct"`
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation"`
	Feedback    string   `json:"feedback"`
}

// ParseJudgement validates raw judge output. Derivation rules: a missing
// is_correct becomes score >= 70; a missing or out-of-range score becomes 85
// for a correct answer and 30 otherwise. A response carrying neither field
// is malformed.
func ParseJudgement(raw string) (Judgement, error) {
	var rj rawJudgement
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &rj); err != nil {
		return Judgement{}, fmt.Errorf("parse judgement: %w", err)
	}
	if rj.IsCorrect == nil && rj.Score == nil {
		return Judgement{}, fmt.Errorf("parse judgement: neither is_correct nor score present")
	}

	j := Judgement{
		Explanation: rj.Explanation,
		Feedback:    rj.Feedback,
	}

	scoreValid := rj.Score != nil && *rj.Score >= 0 && *rj.Score <= 100

	if rj.IsCorrect != nil {
		j.IsCorrect = *rj.IsCorrect
	} else {
		j.IsCorrect = scoreValid && *rj.Score >= 70
	}

	if scoreValid {
		j.Score = *rj.Score
	} else if j.IsCorrect {
		j.Score = 85
	} else {
		j.Score = 30
	}

	return j, nil
}
