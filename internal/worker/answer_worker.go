package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

// AnswerWorker consumes persist_answers_queue and mirrors ledger saves into
// PostgreSQL. The Redis ledger stays authoritative while the attempt runs;
// these rows exist so a Redis loss costs at most the queue backlog, and so
// finished attempts have durable per-answer rows even before finalization.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or the 1-second timeout.
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var item model.AnswerPersistItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &item); err != nil {
		w.log.Error().Err(err).
			Str("record_id", item.RecordID.String()).
			Str("question_id", item.QuestionID.String()).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AnswerWorker) persist(ctx context.Context, item *model.AnswerPersistItem) error {
	// Last write wins for the answer; time spent accumulates, mirroring the
	// ledger's HINCRBY semantics. Only while the record is in_progress:
	// finalization writes the ledger's absolute totals, which already include
	// every queued delta, so a lagging item applied afterwards would double
	// count. Finalized records make these rows read-only.
	_, err := w.pool.Exec(ctx,
		`INSERT INTO exam_answers (record_id, question_id, user_answer, time_spent_seconds)
		 SELECT r.id, $2, $3, $4
		 FROM exam_records r
		 WHERE r.id = $1 AND r.status = 'in_progress'
		 ON CONFLICT (record_id, question_id) DO UPDATE
		 SET user_answer = EXCLUDED.user_answer,
		     time_spent_seconds = exam_answers.time_spent_seconds + EXCLUDED.time_spent_seconds,
		     updated_at = NOW()`,
		item.RecordID, item.QuestionID, item.UserAnswer, item.TimeSpentSeconds,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var item model.AnswerPersistItem
		if err := json.Unmarshal([]byte(result), &item); err != nil {
			continue
		}
		if err := w.persist(ctx, &item); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error, item dropped back")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}
	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining answers")
	}
}
