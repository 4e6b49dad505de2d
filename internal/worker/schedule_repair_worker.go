package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
	"github.com/dmitryplyaskin/pathwise-backend/internal/scheduler"
)

const (
	RepairPollTimeout = 1 * time.Second
	RepairRetryDelay  = 5 * time.Second
	RepairMaxAttempts = 5
)

// ProgressUpdater advances a lesson's review schedule.
type ProgressUpdater interface {
	ApplyReview(ctx context.Context, lessonID uuid.UUID, score float64, reviewedAt time.Time) (*scheduler.Schedule, error)
}

type repairPayload struct {
	LessonID   string    `json:"lesson_id"`
	Score      float64   `json:"score"`
	ReviewedAt time.Time `json:"reviewed_at"`
	Attempts   int       `json:"attempts"`
}

// ScheduleRepairWorker drains schedule updates that failed at submission
// time. Grading already committed for these items, so the worker retries
// until the schedule catches up, dropping an item only after repeated
// failures or an unparseable payload.
type ScheduleRepairWorker struct {
	progress ProgressUpdater
	rdb      *redis.Client
	log      zerolog.Logger
}

func NewScheduleRepairWorker(progress ProgressUpdater, rdb *redis.Client, log zerolog.Logger) *ScheduleRepairWorker {
	return &ScheduleRepairWorker{
		progress: progress,
		rdb:      rdb,
		log:      log.With().Str("component", "schedule_repair_worker").Logger(),
	}
}

func (w *ScheduleRepairWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScheduleRepairWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested")
			return

		default:
			item, err := w.rdb.BLPop(ctx, RepairPollTimeout, config.WorkerKey.RepairScheduleQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p repairPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload, dropping")
				continue
			}

			w.process(ctx, &p)
		}
	}
}

func (w *ScheduleRepairWorker) process(ctx context.Context, p *repairPayload) {
	lessonID, err := uuid.Parse(p.LessonID)
	if err != nil {
		w.log.Error().Err(err).Str("lesson_id", p.LessonID).Msg("Invalid lesson id, dropping")
		return
	}

	if _, err := w.progress.ApplyReview(ctx, lessonID, p.Score, p.ReviewedAt); err != nil {
		p.Attempts++
		if p.Attempts >= RepairMaxAttempts {
			w.log.Error().Err(err).
				Str("lesson_id", p.LessonID).
				Int("attempts", p.Attempts).
				Msg("Schedule repair exhausted retries, dropping")
			return
		}

		w.log.Warn().Err(err).
			Str("lesson_id", p.LessonID).
			Int("attempts", p.Attempts).
			Msg("Schedule repair failed, requeueing")

		raw, _ := json.Marshal(p)
		select {
		case <-ctx.Done():
		case <-time.After(RepairRetryDelay):
		}
		if err := w.rdb.RPush(ctx, config.WorkerKey.RepairScheduleQueue, raw).Err(); err != nil {
			w.log.Error().Err(err).Str("lesson_id", p.LessonID).Msg("Requeue failed")
		}
		return
	}

	w.log.Info().
		Str("lesson_id", p.LessonID).
		Float64("score", p.Score).
		Msg("Schedule repaired")
}

// RedisRepairQueue is the producer side of the repair queue.
type RedisRepairQueue struct {
	rdb *redis.Client
}

func NewRedisRepairQueue(rdb *redis.Client) *RedisRepairQueue {
	return &RedisRepairQueue{rdb: rdb}
}

func (q *RedisRepairQueue) Enqueue(ctx context.Context, lessonID uuid.UUID, score float64, reviewedAt time.Time) error {
	raw, err := json.Marshal(repairPayload{
		LessonID:   lessonID.String(),
		Score:      score,
		ReviewedAt: reviewedAt,
	})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.RepairScheduleQueue, raw).Err()
}
