package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType discriminates how an answer is graded.
type QuestionType string

const (
	QuestionTypeChoice   QuestionType = "CHOICE"
	QuestionTypeFreeText QuestionType = "FREE_TEXT"
)

// Question is one gradable prompt within a test. Questions are created by
// the generator when the test is created and are immutable afterward.
//
// For CHOICE questions Options holds a JSON array of option strings and
// CorrectOption the text of the single correct one. For FREE_TEXT questions
// ExpectedAnswer holds the reference answer the judge compares against.
type Question struct {
	ID             uuid.UUID       `json:"id"`
	TestID         uuid.UUID       `json:"test_id"`
	Type           QuestionType    `json:"type"`
	Prompt         string          `json:"prompt"`
	Options        json.RawMessage `json:"options,omitempty"`
	CorrectOption  string          `json:"correct_option,omitempty"`
	ExpectedAnswer string          `json:"expected_answer,omitempty"`
	Explanation    string          `json:"explanation"`
	OrderNum       int             `json:"order_num"`
}

// QuestionForLearner is a question with all grading material stripped.
// This is the only question shape that may cross the API boundary while a
// test is in progress.
type QuestionForLearner struct {
	ID       uuid.UUID       `json:"id"`
	Type     QuestionType    `json:"type"`
	Prompt   string          `json:"prompt"`
	Options  json.RawMessage `json:"options,omitempty"`
	OrderNum int             `json:"order_num"`
}

// ForLearner strips the correct option and expected answer from a question.
func (q *Question) ForLearner() QuestionForLearner {
	return QuestionForLearner{
		ID:       q.ID,
		Type:     q.Type,
		Prompt:   q.Prompt,
		Options:  q.Options,
		OrderNum: q.OrderNum,
	}
}
