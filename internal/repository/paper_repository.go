package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// PaperRepository reads papers and their questions, answer keys included.
// Papers are immutable from the attempt engine's perspective.
type PaperRepository struct {
	pool *pgxpool.Pool
}

// NewPaperRepository creates a new PaperRepository.
func NewPaperRepository(pool *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{pool: pool}
}

// GetByID retrieves a paper with its questions in authored order.
func (r *PaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Paper, error) {
	p := &model.Paper{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title FROM papers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title)
	if err != nil {
		return nil, mapNoRows(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, options, correct_answer, points, order_num
		 FROM questions
		 WHERE paper_id = $1
		 ORDER BY order_num ASC, id ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options,
			&q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		p.Questions = append(p.Questions, q)
	}
	return p, rows.Err()
}
