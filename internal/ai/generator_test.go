package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

func TestParseQuestionSetValid(t *testing.T) {
	raw := `{"questions":[
		{"type":"CHOICE","prompt":"2+2?","options":["3","4","5"],"correct_index":1,"explanation":"arithmetic"},
		{"type":"FREE_TEXT","prompt":"Explain gravity.","expected_answer":"Masses attract each other.","explanation":"physics"}
	]}`

	questions, err := ParseQuestionSet(raw, 2)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, model.QuestionTypeChoice, questions[0].Type)
	assert.Equal(t, []string{"3", "4", "5"}, questions[0].Options)
	assert.Equal(t, 1, questions[0].CorrectIndex)

	assert.Equal(t, model.QuestionTypeFreeText, questions[1].Type)
	assert.Equal(t, "Masses attract each other.", questions[1].ExpectedAnswer)
}

func TestParseQuestionSetStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"questions\":[{\"type\":\"FREE_TEXT\",\"prompt\":\"Why?\",\"expected_answer\":\"Because.\",\"explanation\":\"\"}]}\n```"

	questions, err := ParseQuestionSet(raw, 1)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestParseQuestionSetTrimsSurplus(t *testing.T) {
	raw := `{"questions":[
		{"type":"FREE_TEXT","prompt":"a","expected_answer":"x","explanation":""},
		{"type":"FREE_TEXT","prompt":"b","expected_answer":"y","explanation":""},
		{"type":"FREE_TEXT","prompt":"c","expected_answer":"z","explanation":""}
	]}`

	questions, err := ParseQuestionSet(raw, 2)
	require.NoError(t, err)
	assert.Len(t, questions, 2)
}

func TestParseQuestionSetRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "here are your questions!"},
		{"empty set", `{"questions":[]}`},
		{"unknown type", `{"questions":[{"type":"MATCHING","prompt":"p"}]}`},
		{"choice missing correct_index", `{"questions":[{"type":"CHOICE","prompt":"p","options":["a","b"]}]}`},
		{"correct_index out of range", `{"questions":[{"type":"CHOICE","prompt":"p","options":["a","b"],"correct_index":2}]}`},
		{"single option", `{"questions":[{"type":"CHOICE","prompt":"p","options":["a"],"correct_index":0}]}`},
		{"blank option", `{"questions":[{"type":"CHOICE","prompt":"p","options":["a","  "],"correct_index":0}]}`},
		{"free text without expected answer", `{"questions":[{"type":"FREE_TEXT","prompt":"p","expected_answer":""}]}`},
		{"empty prompt", `{"questions":[{"type":"FREE_TEXT","prompt":" ","expected_answer":"x"}]}`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseQuestionSet(c.raw, 5)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}
