package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// SessionRepository reads exam session configuration. Sessions are owned by
// the authoring subsystem; the attempt engine never writes them.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var settings []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, paper_id, title, mode, start_time, end_time,
		        available_from, available_until, duration_minutes,
		        max_attempts, status, settings, created_at, updated_at
		 FROM exam_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.PaperID, &s.Title, &s.Mode, &s.StartTime, &s.EndTime,
		&s.AvailableFrom, &s.AvailableUntil, &s.DurationMinutes,
		&s.MaxAttempts, &s.Status, &settings, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &s.Settings); err != nil {
			return nil, fmt.Errorf("decode session settings: %w", err)
		}
	}
	return s, nil
}
