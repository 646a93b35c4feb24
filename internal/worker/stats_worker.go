package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

const (
	StatsBatchSize    = 50
	StatsBatchTimeout = 2 * time.Second
	StatsPollTimeout  = 1 * time.Second
)

// StatsWorker folds finished attempts into per-session aggregate rows.
// Preview attempts are never queued here, so the aggregates only ever see
// graded records.
type StatsWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewStatsWorker creates a new StatsWorker.
func NewStatsWorker(pool *pgxpool.Pool, rdb *redis.Client) *StatsWorker {
	return &StatsWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "stats_worker").Logger(),
	}
}

// Start runs the batching loop. Call in a goroutine.
func (w *StatsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StatsWorker started")

	batch := make([]*model.SessionStatsItem, 0, StatsBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= StatsBatchSize || time.Since(lastFlush) >= StatsBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, StatsPollTimeout, config.WorkerKey.PersistStatsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.SessionStatsItem
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *StatsWorker) flushSafe(ctx context.Context, batch []*model.SessionStatsItem) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk stats upsert failed, using fallback")

		for _, p := range batch {
			if err := w.upsertSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("upsertSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistStatsQueue, raw)
			}
		}
	}
}

// bulkUpsert applies one UNNEST statement for the whole batch. Each row in
// the batch adds one attempt to its session's aggregate.
func (w *StatsWorker) bulkUpsert(ctx context.Context, batch []*model.SessionStatsItem) error {
	n := len(batch)

	sessionIDs := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	passed := make([]bool, 0, n)
	expired := make([]bool, 0, n)

	for _, p := range batch {
		sessionIDs = append(sessionIDs, p.SessionID)
		scores = append(scores, p.Score)
		passed = append(passed, p.IsPassed)
		expired = append(expired, p.Expired)
	}

	query := `
		INSERT INTO session_stats (session_id, attempt_count, score_sum, pass_count, expired_count)
		SELECT
			u.session_id,
			COUNT(*),
			SUM(u.score),
			COUNT(*) FILTER (WHERE u.is_passed),
			COUNT(*) FILTER (WHERE u.expired)
		FROM UNNEST($1::uuid[], $2::float8[], $3::bool[], $4::bool[])
			AS u(session_id, score, is_passed, expired)
		GROUP BY u.session_id
		ON CONFLICT (session_id) DO UPDATE
		SET attempt_count = session_stats.attempt_count + EXCLUDED.attempt_count,
		    score_sum     = session_stats.score_sum + EXCLUDED.score_sum,
		    pass_count    = session_stats.pass_count + EXCLUDED.pass_count,
		    expired_count = session_stats.expired_count + EXCLUDED.expired_count,
		    updated_at    = NOW()`

	_, err := w.pool.Exec(ctx, query, sessionIDs, scores, passed, expired)
	return err
}

func (w *StatsWorker) upsertSingle(ctx context.Context, p *model.SessionStatsItem) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO session_stats (session_id, attempt_count, score_sum, pass_count, expired_count)
		 VALUES ($1, 1, $2, $3::int, $4::int)
		 ON CONFLICT (session_id) DO UPDATE
		 SET attempt_count = session_stats.attempt_count + 1,
		     score_sum     = session_stats.score_sum + EXCLUDED.score_sum,
		     pass_count    = session_stats.pass_count + EXCLUDED.pass_count,
		     expired_count = session_stats.expired_count + EXCLUDED.expired_count,
		     updated_at    = NOW()`,
		p.SessionID, p.Score, p.IsPassed, p.Expired,
	)
	return err
}
