package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

func TestQualityBucket(t *testing.T) {
	cases := []struct {
		score float64
		want  int
	}{
		{100, 5},
		{85, 5},
		{84.9, 4},
		{70, 4},
		{69.9, 3},
		{50, 3},
		{49.9, 2},
		{30, 2},
		{29.9, 1},
		{0, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, QualityBucket(c.score), "score %v", c.score)
	}
}

func TestNextScheduleFailResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Any prior state plus a failing score drops back to LEARNING with the
	// initial interval.
	priors := []State{
		{model.ReviewStatusNotStarted, 0, 2.5},
		{model.ReviewStatusLearning, 1, 2.5},
		{model.ReviewStatusMastered, 42, 1.9},
	}
	for _, cur := range priors {
		next := NextSchedule(cur, 20, now)
		assert.Equal(t, model.ReviewStatusLearning, next.Status)
		assert.Equal(t, 1, next.IntervalDays)
		assert.Equal(t, now.AddDate(0, 0, 1), next.NextReviewAt)
	}

	// Failing applies a 0.2 ease penalty but never below the floor.
	next := NextSchedule(State{model.ReviewStatusMastered, 10, 2.5}, 10, now)
	assert.InDelta(t, 2.3, next.EaseFactor, 1e-9)

	next = NextSchedule(State{model.ReviewStatusMastered, 10, 1.35}, 10, now)
	assert.Equal(t, MinEase, next.EaseFactor)
}

func TestNextScheduleFirstPassResetsEase(t *testing.T) {
	now := time.Now()

	// The stored ease is ignored on the first pass: the learner has no ease
	// history yet, so InitialEase is assigned outright.
	for _, ease := range []float64{1.3, 2.0, 2.5, 3.1} {
		next := NextSchedule(State{model.ReviewStatusNotStarted, 0, ease}, 60, now)
		assert.Equal(t, model.ReviewStatusLearning, next.Status)
		assert.Equal(t, 1, next.IntervalDays)
		assert.Equal(t, InitialEase, next.EaseFactor)
	}
}

func TestNextScheduleMasteryGrowth(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name         string
		cur          State
		score        float64
		wantInterval int
		wantEase     float64
	}{
		{
			name:         "learning to mastered, perfect score",
			cur:          State{model.ReviewStatusLearning, 1, 2.5},
			score:        100,
			wantInterval: 3, // round(1 * 2.5)
			wantEase:     2.6,
		},
		{
			name:         "mastered grows by ease, q=4",
			cur:          State{model.ReviewStatusMastered, 3, 2.6},
			score:        75,
			wantInterval: 8,                                  // round(3 * 2.6)
			wantEase:     2.6 + 0.1 - 1*(0.08+1*0.02),        // 2.6
		},
		{
			name:         "barely passing q=3 shrinks ease",
			cur:          State{model.ReviewStatusMastered, 8, 2.6},
			score:        55,
			wantInterval: 21,                                 // round(8 * 2.6)
			wantEase:     2.6 + 0.1 - 2*(0.08+2*0.02),        // 2.46
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next := NextSchedule(c.cur, c.score, now)
			assert.Equal(t, model.ReviewStatusMastered, next.Status)
			assert.Equal(t, c.wantInterval, next.IntervalDays)
			assert.InDelta(t, c.wantEase, next.EaseFactor, 1e-9)
			assert.Equal(t, now.AddDate(0, 0, c.wantInterval), next.NextReviewAt)
		})
	}
}

func TestNextScheduleIntervalNeverZero(t *testing.T) {
	now := time.Now()

	// A zero prior interval would round to zero; the floor keeps the lesson
	// from being due immediately after a pass.
	next := NextSchedule(State{model.ReviewStatusLearning, 0, 2.5}, 90, now)
	assert.Equal(t, InitialIntervalDays, next.IntervalDays)
}

func TestNextScheduleEaseFloorHoldsOverAnySequence(t *testing.T) {
	now := time.Now()

	cur := State{model.ReviewStatusLearning, 1, 2.5}
	scores := []float64{10, 10, 10, 55, 10, 55, 10, 10, 55, 10, 10, 10, 10}
	for _, s := range scores {
		next := NextSchedule(cur, s, now)
		require.GreaterOrEqual(t, next.EaseFactor, MinEase)
		require.GreaterOrEqual(t, next.IntervalDays, 1)
		cur = State{next.Status, next.IntervalDays, next.EaseFactor}
	}
}

func TestNextScheduleClampsUpstreamValues(t *testing.T) {
	now := time.Now()

	// Out-of-range scores clamp instead of erroring.
	next := NextSchedule(State{model.ReviewStatusLearning, 1, 2.5}, 130, now)
	assert.Equal(t, model.ReviewStatusMastered, next.Status)

	next = NextSchedule(State{model.ReviewStatusLearning, 1, 2.5}, -5, now)
	assert.Equal(t, model.ReviewStatusLearning, next.Status)

	// A corrupted ease below the floor is normalized before use.
	next = NextSchedule(State{model.ReviewStatusMastered, 10, 0.5}, 100, now)
	assert.Equal(t, 13, next.IntervalDays) // round(10 * 1.3)
}

// Mirrors the two-cycle walkthrough from the product notes: a fresh lesson
// scored 80 then 100.
func TestNextScheduleTwoCycleScenario(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	first := NextSchedule(State{model.ReviewStatusNotStarted, 0, 2.5}, 80, now)
	require.Equal(t, model.ReviewStatusLearning, first.Status)
	require.Equal(t, 1, first.IntervalDays)
	require.Equal(t, 2.5, first.EaseFactor)
	require.Equal(t, now.AddDate(0, 0, 1), first.NextReviewAt)

	second := NextSchedule(State{first.Status, first.IntervalDays, first.EaseFactor}, 100, now.AddDate(0, 0, 1))
	require.Equal(t, model.ReviewStatusMastered, second.Status)
	require.Equal(t, 3, second.IntervalDays)
	require.InDelta(t, 2.6, second.EaseFactor, 1e-9)
}
