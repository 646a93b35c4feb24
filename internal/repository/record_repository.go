package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// ErrDuplicateInProgress signals that another in_progress record already
// exists for the same (session, user). Raised by the unique partial index
// on concurrent starts.
var ErrDuplicateInProgress = errors.New("an in-progress record already exists")

const recordColumns = `id, session_id, user_id, status, attempt_number,
	start_time, deadline, end_time, question_order, result, created_at, updated_at`

// RecordRepository handles exam record (attempt) persistence. Status
// transitions go through Finalize, which is guarded so a record leaves
// in_progress exactly once.
type RecordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func scanRecord(row pgx.Row) (*model.ExamRecord, error) {
	rec := &model.ExamRecord{}
	var order, result []byte
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.Status,
		&rec.AttemptNumber, &rec.StartTime, &rec.Deadline, &rec.EndTime,
		&order, &result, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &rec.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return rec, nil
}

// GetByID retrieves a record by its UUID.
func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM exam_records WHERE id = $1`, id))
}

// GetInProgress retrieves the live record for a (session, user) pair, if any.
func (r *RecordRepository) GetInProgress(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM exam_records
		 WHERE session_id = $1 AND user_id = $2 AND status = $3`,
		sessionID, userID, model.RecordStatusInProgress))
}

// GetLatest retrieves the most recently started record for a (session, user)
// pair regardless of status.
func (r *RecordRepository) GetLatest(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM exam_records
		 WHERE session_id = $1 AND user_id = $2
		 ORDER BY start_time DESC
		 LIMIT 1`,
		sessionID, userID))
}

// CountAttempts counts every record for a (session, user) pair, live or
// terminal, for max-attempts accounting.
func (r *RecordRepository) CountAttempts(ctx context.Context, sessionID uuid.UUID, userID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_records WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(&n)
	return n, err
}

// Create inserts a new in_progress record. The unique partial index on
// (session_id, user_id) WHERE status = 'in_progress' turns a concurrent
// start into ErrDuplicateInProgress so the caller can fetch and reuse the
// winner's record.
func (r *RecordRepository) Create(ctx context.Context, rec *model.ExamRecord) error {
	order, err := json.Marshal(rec.QuestionOrder)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_records
		   (id, session_id, user_id, status, attempt_number, start_time, deadline, question_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id, user_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING created_at, updated_at`,
		rec.ID, rec.SessionID, rec.UserID, rec.Status, rec.AttemptNumber,
		rec.StartTime, rec.Deadline, order,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateInProgress
	}
	return err
}

// Finalize moves a record out of in_progress, storing the scored answers and
// the result in one transaction. Returns false without error when the record
// already left in_progress (a concurrent submit or expiry won the race).
func (r *RecordRepository) Finalize(ctx context.Context, rec *model.ExamRecord) (bool, error) {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_records
		 SET status = $1, end_time = $2, result = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		rec.Status, rec.EndTime, result, rec.ID, model.RecordStatusInProgress)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, a := range rec.Answers {
		batch.Queue(
			`INSERT INTO exam_answers
			   (record_id, question_id, user_answer, time_spent_seconds, is_correct, points_awarded)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (record_id, question_id) DO UPDATE
			 SET user_answer = EXCLUDED.user_answer,
			     time_spent_seconds = EXCLUDED.time_spent_seconds,
			     is_correct = EXCLUDED.is_correct,
			     points_awarded = EXCLUDED.points_awarded,
			     updated_at = NOW()`,
			rec.ID, a.QuestionID, a.UserAnswer, a.TimeSpentSeconds, a.IsCorrect, a.PointsAwarded)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListAnswers retrieves the durably stored answers for a record.
func (r *RecordRepository) ListAnswers(ctx context.Context, recordID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, user_answer, time_spent_seconds, is_correct, points_awarded
		 FROM exam_answers
		 WHERE record_id = $1`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.UserAnswer, &a.TimeSpentSeconds,
			&a.IsCorrect, &a.PointsAwarded); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ListByUser retrieves a user's attempt history, newest first. Preview
// attempts never appear here since they are not stored in this table.
func (r *RecordRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.ExamRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM exam_records
		 WHERE user_id = $1
		 ORDER BY start_time DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ExamRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
