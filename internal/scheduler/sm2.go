// Package scheduler implements the spaced-repetition scheduling step as a
// pure function over a lesson's review state. It is a quality-bucketed
// variant of SM-2: instead of the classical 0-5 recall grade, a session
// score percentage is discretized into a 1-5 bucket before the standard
// ease-factor update is applied.
package scheduler

import (
	"math"
	"time"

	"github.com/dmitryplyaskin/pathwise-backend/internal/model"
)

const (
	// MinEase is the floor for the ease factor, as in classical SM-2.
	MinEase = 1.3
	// InitialEase is assigned on a lesson's first successful review.
	InitialEase = 2.5
	// InitialIntervalDays is the interval after a first pass or any fail.
	InitialIntervalDays = 1
)

// State is the schedule-relevant slice of a lesson's review state.
type State struct {
	Status       model.ReviewStatus
	IntervalDays int
	EaseFactor   float64
}

// Schedule is the result of one scheduling step. NextReviewAt is derived
// from the interval; LastReviewedAt is the caller's concern.
type Schedule struct {
	Status       model.ReviewStatus
	IntervalDays int
	EaseFactor   float64
	NextReviewAt time.Time
}

// QualityBucket maps a score percentage onto the 1-5 quality scale.
// Thresholds: >=85 maps to 5, >=70 to 4, >=50 to 3, >=30 to 2, else 1.
func QualityBucket(scorePercent float64) int {
	switch {
	case scorePercent >= 85:
		return 5
	case scorePercent >= 70:
		return 4
	case scorePercent >= 50:
		return 3
	case scorePercent >= 30:
		return 2
	default:
		return 1
	}
}

// NextSchedule computes the schedule after a graded session.
//
// A quality bucket below 3 is a fail: the lesson drops back to LEARNING
// with the initial interval and a 0.2 ease penalty. A pass from NOT_STARTED
// resets the ease to InitialEase (the learner has no ease history yet) and
// starts the initial interval. A pass from LEARNING or MASTERED grows the
// interval by the current ease and applies the classical SM-2 ease update.
//
// Out-of-range inputs are clamped, never rejected: scores outside [0,100],
// negative intervals, and ease factors below MinEase are normalized first.
func NextSchedule(cur State, scorePercent float64, now time.Time) Schedule {
	scorePercent = clampScore(scorePercent)
	if cur.IntervalDays < 0 {
		cur.IntervalDays = 0
	}
	if cur.EaseFactor < MinEase {
		cur.EaseFactor = MinEase
	}

	q := QualityBucket(scorePercent)

	var next Schedule
	switch {
	case q < 3:
		next.Status = model.ReviewStatusLearning
		next.IntervalDays = InitialIntervalDays
		next.EaseFactor = clampEase(cur.EaseFactor - 0.2)

	case cur.Status == model.ReviewStatusNotStarted:
		next.Status = model.ReviewStatusLearning
		next.IntervalDays = InitialIntervalDays
		next.EaseFactor = InitialEase

	default:
		next.Status = model.ReviewStatusMastered
		next.IntervalDays = int(math.Round(float64(cur.IntervalDays) * cur.EaseFactor))
		if next.IntervalDays < InitialIntervalDays {
			next.IntervalDays = InitialIntervalDays
		}
		fq := float64(q)
		next.EaseFactor = clampEase(cur.EaseFactor + 0.1 - (5-fq)*(0.08+(5-fq)*0.02))
	}

	next.NextReviewAt = now.AddDate(0, 0, next.IntervalDays)
	return next
}

func clampEase(ease float64) float64 {
	if ease < MinEase {
		return MinEase
	}
	return ease
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
