package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

// AnswerLedger is the hot-path store for in-progress answers, backed by two
// Redis hashes per record: one holding the latest answer per question
// (last write wins) and one accumulating seconds spent (HINCRBY, so rapid
// auto-saves merge atomically without a lock).
type AnswerLedger struct {
	rdb *redis.Client
}

// NewAnswerLedger creates a new AnswerLedger.
func NewAnswerLedger(rdb *redis.Client) *AnswerLedger {
	return &AnswerLedger{rdb: rdb}
}

// Upsert records the latest answer for a question and adds timeSpent to the
// question's accumulated total. Both writes go through one pipeline.
func (l *AnswerLedger) Upsert(ctx context.Context, recordID, questionID uuid.UUID, answer json.RawMessage, timeSpent int) error {
	field := questionID.String()

	pipe := l.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.RecordAnswersKey(recordID.String()), field, []byte(answer))
	if timeSpent > 0 {
		pipe.HIncrBy(ctx, config.CacheKey.RecordTimeSpentKey(recordID.String()), field, int64(timeSpent))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger upsert: %w", err)
	}
	return nil
}

// GetAll returns every ledger entry for a record, keyed by question id.
func (l *AnswerLedger) GetAll(ctx context.Context, recordID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	answers, err := l.rdb.HGetAll(ctx, config.CacheKey.RecordAnswersKey(recordID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger answers: %w", err)
	}
	times, err := l.rdb.HGetAll(ctx, config.CacheKey.RecordTimeSpentKey(recordID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger time spent: %w", err)
	}

	out := make(map[uuid.UUID]model.Answer, len(answers))
	for field, raw := range answers {
		qid, err := uuid.Parse(field)
		if err != nil {
			continue // foreign key in the hash, skip
		}
		spent := 0
		if t, ok := times[field]; ok {
			spent, _ = strconv.Atoi(t)
		}
		out[qid] = model.Answer{
			QuestionID:       qid,
			UserAnswer:       json.RawMessage(raw),
			TimeSpentSeconds: spent,
		}
	}
	return out, nil
}

// Count returns the number of answered questions for a record.
func (l *AnswerLedger) Count(ctx context.Context, recordID uuid.UUID) (int, error) {
	n, err := l.rdb.HLen(ctx, config.CacheKey.RecordAnswersKey(recordID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger count: %w", err)
	}
	return int(n), nil
}

// Clear removes a record's ledger keys. Called after the scored answers have
// been persisted durably.
func (l *AnswerLedger) Clear(ctx context.Context, recordID uuid.UUID) error {
	return l.rdb.Del(ctx,
		config.CacheKey.RecordAnswersKey(recordID.String()),
		config.CacheKey.RecordTimeSpentKey(recordID.String()),
	).Err()
}
