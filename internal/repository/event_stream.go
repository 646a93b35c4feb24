package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

// EventStream fans attempt activity out of the request path: durable-ish
// worker queues (Redis lists drained by BLPop workers) and a fire-and-forget
// pub/sub channel for the author live monitor.
type EventStream struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventStream creates a new EventStream.
func NewEventStream(rdb *redis.Client) *EventStream {
	return &EventStream{
		rdb: rdb,
		log: log.With().Str("component", "event_stream").Logger(),
	}
}

// EnqueueAnswerPersist queues one answer save for the write-behind worker.
func (s *EventStream) EnqueueAnswerPersist(ctx context.Context, item model.AnswerPersistItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal answer persist item: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data).Err()
}

// EnqueueStats queues one finished attempt for the session stats worker.
func (s *EventStream) EnqueueStats(ctx context.Context, item model.SessionStatsItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal stats item: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistStatsQueue, data).Err()
}

// PublishMonitor sends a live-monitor event for the session. Delivery is best
// effort: a publish failure is logged, never surfaced to the student request.
func (s *EventStream) PublishMonitor(ctx context.Context, sessionID uuid.UUID, event model.MonitorEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal monitor event")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.SessionMonitorChannel(sessionID.String()), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("monitor publish failed")
	}
}

// SubscribeMonitor opens a pub/sub subscription on a session's monitor
// channel. The caller owns the returned subscription and must Close it.
func (s *EventStream) SubscribeMonitor(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.SessionMonitorChannel(sessionID.String()))
}
