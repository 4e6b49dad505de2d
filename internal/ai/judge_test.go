package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgementComplete(t *testing.T) {
	j, err := ParseJudgement(`{"is_correct":true,"score":92,"explanation":"matches","feedback":"nice"}`)
	require.NoError(t, err)
	assert.True(t, j.IsCorrect)
	assert.Equal(t, 92.0, j.Score)
	assert.Equal(t, "matches", j.Explanation)
	assert.Equal(t, "nice", j.Feedback)
}

func TestParseJudgementDerivesIsCorrectFromScore(t *testing.T) {
	j, err := ParseJudgement(`{"score":70,"explanation":"","feedback":""}`)
	require.NoError(t, err)
	assert.True(t, j.IsCorrect)

	j, err = ParseJudgement(`{"score":69.9}`)
	require.NoError(t, err)
	assert.False(t, j.IsCorrect)
}

func TestParseJudgementDerivesScoreFromIsCorrect(t *testing.T) {
	j, err := ParseJudgement(`{"is_correct":true}`)
	require.NoError(t, err)
	assert.Equal(t, 85.0, j.Score)

	j, err = ParseJudgement(`{"is_correct":false}`)
	require.NoError(t, err)
	assert.Equal(t, 30.0, j.Score)

	// An out-of-range score is replaced, not clamped at face value.
	j, err = ParseJudgement(`{"is_correct":true,"score":900}`)
	require.NoError(t, err)
	assert.Equal(t, 85.0, j.Score)
}

func TestParseJudgementRejectsUnusable(t *testing.T) {
	_, err := ParseJudgement(`the answer looks right to me`)
	assert.Error(t, err)

	_, err = ParseJudgement(`{"explanation":"no verdict fields"}`)
	assert.Error(t, err)
}
