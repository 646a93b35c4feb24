package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

// PreviewStore keeps author dry-run attempts entirely in Redis with a TTL.
// Nothing here ever reaches Postgres, so previews can never pollute graded
// history or attempt counts.
type PreviewStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPreviewStore creates a PreviewStore whose entries expire after ttl.
func NewPreviewStore(rdb *redis.Client, ttl time.Duration) *PreviewStore {
	return &PreviewStore{rdb: rdb, ttl: ttl}
}

// Save writes the preview record as JSON and refreshes the TTL on all of the
// preview's keys so a record update keeps its answers alive too.
func (s *PreviewStore) Save(ctx context.Context, rec *model.PreviewRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal preview record: %w", err)
	}

	id := rec.PreviewID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.PreviewRecordKey(id), data, s.ttl)
	pipe.Expire(ctx, config.CacheKey.PreviewAnswersKey(id), s.ttl)
	pipe.Expire(ctx, config.CacheKey.PreviewTimeSpentKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save preview record: %w", err)
	}
	return nil
}

// Get loads a preview record. Returns ErrNotFound when the key is missing or
// has expired.
func (s *PreviewStore) Get(ctx context.Context, previewID uuid.UUID) (*model.PreviewRecord, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.PreviewRecordKey(previewID.String())).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preview record: %w", err)
	}

	var rec model.PreviewRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal preview record: %w", err)
	}
	return &rec, nil
}

// SaveAnswer mirrors AnswerLedger.Upsert for a preview attempt and keeps the
// answer hashes on the same expiry clock as the record key.
func (s *PreviewStore) SaveAnswer(ctx context.Context, previewID, questionID uuid.UUID, answer json.RawMessage, timeSpent int) error {
	id := previewID.String()
	field := questionID.String()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.PreviewAnswersKey(id), field, []byte(answer))
	if timeSpent > 0 {
		pipe.HIncrBy(ctx, config.CacheKey.PreviewTimeSpentKey(id), field, int64(timeSpent))
	}
	pipe.Expire(ctx, config.CacheKey.PreviewAnswersKey(id), s.ttl)
	pipe.Expire(ctx, config.CacheKey.PreviewTimeSpentKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save preview answer: %w", err)
	}
	return nil
}

// GetAnswers returns all answers recorded for a preview attempt.
func (s *PreviewStore) GetAnswers(ctx context.Context, previewID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	id := previewID.String()
	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.PreviewAnswersKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("preview answers: %w", err)
	}
	times, err := s.rdb.HGetAll(ctx, config.CacheKey.PreviewTimeSpentKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("preview time spent: %w", err)
	}

	out := make(map[uuid.UUID]model.Answer, len(answers))
	for field, raw := range answers {
		qid, err := uuid.Parse(field)
		if err != nil {
			continue
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

// Delete removes every key belonging to a preview attempt.
func (s *PreviewStore) Delete(ctx context.Context, previewID uuid.UUID) error {
	id := previewID.String()
	return s.rdb.Del(ctx,
		config.CacheKey.PreviewRecordKey(id),
		config.CacheKey.PreviewAnswersKey(id),
		config.CacheKey.PreviewTimeSpentKey(id),
	).Err()
}
