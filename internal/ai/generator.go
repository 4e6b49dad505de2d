package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

// ErrMalformedOutput indicates the model returned something that could not
// be validated into a question set. Callers map this to GENERATION_FAILED.
var ErrMalformedOutput = errors.New("malformed generator output")

// GeneratedQuestion is one validated item from the generator. Exactly one of
// the Choice/FreeText halves is populated, discriminated by Type.
type GeneratedQuestion struct {
	Type           model.QuestionType
	Prompt         string
	Options        []string
	CorrectIndex   int
	ExpectedAnswer string
	Explanation    string
}

// GenerateRequest describes the question set to produce for a lesson.
type GenerateRequest struct {
	LessonTitle   string
	LessonContent string
	QuestionCount int
	QuestionTypes []model.QuestionType
}

// Generator turns lesson content into a validated question set via an LLM.
type Generator struct {
	completer Completer
	timeout   time.Duration
}

// NewGenerator creates a Generator with a per-call timeout.
func NewGenerator(completer Completer, timeout time.Duration) *Generator {
	return &Generator{completer: completer, timeout: timeout}
}

const generatorSystemPrompt = `You are a quiz author for a learning platform.
Given lesson material, write questions that test understanding of that material only.
Respond with a single JSON object of the form:
{"questions":[
  {"type":"CHOICE","prompt":"...","options":["...","...","...","..."],"correct_index":0,"explanation":"..."},
  {"type":"FREE_TEXT","prompt":"...","expected_answer":"...","explanation":"..."}
]}
Rules: CHOICE questions have 2-6 options and exactly one correct_index.
FREE_TEXT questions have a concise expected_answer (1-3 sentences).
Every question has a short explanation. Do not include any other fields.`

// rawQuestion is the untyped boundary shape. It is validated into the closed
// GeneratedQuestion union immediately; nothing untyped travels further in.
type rawQuestion struct {
	Type           string   `json:"type"`
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	CorrectIndex   *int     `json:"correct_index"`
	ExpectedAnswer string   `json:"expected_answer"`
	Explanation    string   `json:"explanation"`
}

type rawQuestionSet struct {
	Questions []rawQuestion `json:"questions"`
}

// Generate produces Count questions for the lesson. The LLM call runs under
// the configured timeout; malformed output is rejected with
// ErrMalformedOutput rather than partially accepted.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]GeneratedQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	userPrompt := g.buildPrompt(req)

	raw, err := g.completer.Complete(ctx, generatorSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	return ParseQuestionSet(raw, req.QuestionCount)
}

func (g *Generator) buildPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly %d questions for the lesson below.\n", req.QuestionCount)

	if len(req.QuestionTypes) == 1 {
		fmt.Fprintf(&b, "Use only %s questions.\n", req.QuestionTypes[0])
	} else {
		b.WriteString("Mix CHOICE and FREE_TEXT questions, mostly CHOICE.\n")
	}

	fmt.Fprintf(&b, "\nLesson title: %s\n\nLesson material:\n%s\n", req.LessonTitle, req.LessonContent)
	return b.String()
}

// ParseQuestionSet validates raw model output into the closed question
// union. A set with no usable questions, an unknown type, a CHOICE question
// without exactly one valid correct option, or a FREE_TEXT question without
// an expected answer is rejected as a whole.
func ParseQuestionSet(raw string, wantCount int) ([]GeneratedQuestion, error) {
	var set rawQuestionSet
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(set.Questions) == 0 {
		return nil, fmt.Errorf("%w: empty question set", ErrMalformedOutput)
	}

	questions := make([]GeneratedQuestion, 0, len(set.Questions))
	for i, rq := range set.Questions {
		q, err := validateQuestion(rq)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrMalformedOutput, i, err)
		}
		questions = append(questions, q)
	}

	// Models occasionally over-produce; surplus is trimmed, shortage is not
	// an error as long as something usable came back.
	if wantCount > 0 && len(questions) > wantCount {
		questions = questions[:wantCount]
	}

	return questions, nil
}

func validateQuestion(rq rawQuestion) (GeneratedQuestion, error) {
	if strings.TrimSpace(rq.Prompt) == "" {
		return GeneratedQuestion{}, errors.New("empty prompt")
	}

	switch model.QuestionType(rq.Type) {
	case model.QuestionTypeChoice:
		if len(rq.Options) < 2 {
			return GeneratedQuestion{}, fmt.Errorf("choice question has %d options", len(rq.Options))
		}
		if rq.CorrectIndex == nil || *rq.CorrectIndex < 0 || *rq.CorrectIndex >= len(rq.Options) {
			return GeneratedQuestion{}, errors.New("correct_index out of range")
		}
		for i, opt := range rq.Options {
			if strings.TrimSpace(opt) == "" {
				return GeneratedQuestion{}, fmt.Errorf("option %d is empty", i)
			}
		}
		return GeneratedQuestion{
			Type:         model.QuestionTypeChoice,
			Prompt:       rq.Prompt,
			Options:      rq.Options,
			CorrectIndex: *rq.CorrectIndex,
			Explanation:  rq.Explanation,
		}, nil

	case model.QuestionTypeFreeText:
		if strings.TrimSpace(rq.ExpectedAnswer) == "" {
			return GeneratedQuestion{}, errors.New("free-text question has no expected answer")
		}
		return GeneratedQuestion{
			Type:           model.QuestionTypeFreeText,
			Prompt:         rq.Prompt,
			ExpectedAnswer: rq.ExpectedAnswer,
			Explanation:    rq.Explanation,
		}, nil

	default:
		return GeneratedQuestion{}, fmt.Errorf("unknown question type %q", rq.Type)
	}
}

// stripCodeFence removes a surrounding markdown code fence if the model
// ignored JSON mode and wrapped its output anyway.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
