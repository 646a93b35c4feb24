package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

// PreviewStorage is the ephemeral TTL store behind preview attempts.
type PreviewStorage interface {
	Save(ctx context.Context, rec *model.PreviewRecord) error
	Get(ctx context.Context, previewID uuid.UUID) (*model.PreviewRecord, error)
	SaveAnswer(ctx context.Context, previewID, questionID uuid.UUID, answer json.RawMessage, timeSpent int) error
	GetAnswers(ctx context.Context, previewID uuid.UUID) (map[uuid.UUID]model.Answer, error)
	Delete(ctx context.Context, previewID uuid.UUID) error
}

// PreviewService is the author dry-run twin of AttemptService. The operation
// shapes match, but every record lives only in the TTL store: no attempt
// counting, no history, no stats, no monitor events. A preview physically
// cannot reach the graded-record tables because nothing here touches them.
type PreviewService struct {
	sessions SessionStore
	papers   PaperStore
	store    PreviewStorage
	now      func() time.Time
}

// NewPreviewService creates a new PreviewService.
func NewPreviewService(sessions SessionStore, papers PaperStore, store PreviewStorage) *PreviewService {
	return &PreviewService{
		sessions: sessions,
		papers:   papers,
		store:    store,
		now:      time.Now,
	}
}

// PreviewStartResult is what a new preview hands the author.
type PreviewStartResult struct {
	Record    *model.PreviewRecord     `json:"record"`
	Questions []model.QuestionForTaker `json:"questions"`
}

// Start opens a fresh preview attempt. Every call mints a new preview id;
// there is no resume and no attempt limit. The availability window is not
// checked either, so authors can dry-run a draft before it opens.
func (s *PreviewService) Start(ctx context.Context, sessionID uuid.UUID) (*PreviewStartResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	paper, err := s.papers.GetByID(ctx, session.PaperID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := make([]uuid.UUID, len(paper.Questions))
	for i, q := range paper.Questions {
		order[i] = q.ID
	}

	rec := &model.PreviewRecord{
		PreviewID:     uuid.New(),
		SessionID:     sessionID,
		PaperID:       paper.ID,
		Status:        model.RecordStatusInProgress,
		StartTime:     now,
		Deadline:      now.Add(session.Duration()),
		QuestionOrder: order,
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	return &PreviewStartResult{
		Record:    rec,
		Questions: paper.QuestionsInOrder(order),
	}, nil
}

// Answer records one answer against a preview attempt. Same ledger rules as
// the real flow: last write wins, time spent accumulates.
func (s *PreviewService) Answer(ctx context.Context, req *model.PreviewAnswerRequest) error {
	rec, err := s.liveRecord(ctx, req.PreviewID)
	if err != nil {
		return err
	}
	return s.store.SaveAnswer(ctx, rec.PreviewID, req.QuestionID, req.Answer, req.TimeSpentSeconds)
}

// AnswerBatch records several answers in one call.
func (s *PreviewService) AnswerBatch(ctx context.Context, req *model.PreviewBatchAnswerRequest) error {
	rec, err := s.liveRecord(ctx, req.PreviewID)
	if err != nil {
		return err
	}
	for _, a := range req.Answers {
		if err := s.store.SaveAnswer(ctx, rec.PreviewID, a.QuestionID, a.Answer, a.TimeSpentSeconds); err != nil {
			return err
		}
	}
	return nil
}

// Submit scores the preview and stores the result back under the same TTL.
// Idempotent like the real submit.
func (s *PreviewService) Submit(ctx context.Context, previewID uuid.UUID) (*model.ScoreResult, error) {
	rec, err := s.store.Get(ctx, previewID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec.Result, nil
	}

	endTime := s.now()
	status := model.RecordStatusCompleted
	if rec.ExpiredAt(endTime) {
		status = model.RecordStatusExpired
		endTime = rec.Deadline
	}

	session, err := s.sessions.GetByID(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	paper, err := s.papers.GetByID(ctx, rec.PaperID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.GetAnswers(ctx, previewID)
	if err != nil {
		return nil, err
	}

	result := Score(answers, paper, session.Settings.PassingScore, rec.StartTime, endTime)
	result.RecordID = rec.PreviewID
	result.SessionID = rec.SessionID

	rec.Status = status
	rec.EndTime = &endTime
	rec.Result = result

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return result, nil
}

// Result returns the stored score of a finished preview. An over-deadline
// running preview is finalized first, mirroring lazy expiry.
func (s *PreviewService) Result(ctx context.Context, previewID uuid.UUID) (*model.ScoreResult, error) {
	rec, err := s.store.Get(ctx, previewID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec.Result, nil
	}
	if rec.ExpiredAt(s.now()) {
		return s.Submit(ctx, previewID)
	}
	return nil, ErrInvalidState
}

// Discard drops a preview attempt early instead of waiting out the TTL.
func (s *PreviewService) Discard(ctx context.Context, previewID uuid.UUID) error {
	if _, err := s.store.Get(ctx, previewID); err != nil {
		return err
	}
	return s.store.Delete(ctx, previewID)
}

// liveRecord loads a preview record and enforces that answers only land on a
// running, not yet expired attempt.
func (s *PreviewService) liveRecord(ctx context.Context, previewID uuid.UUID) (*model.PreviewRecord, error) {
	rec, err := s.store.Get(ctx, previewID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, ErrInvalidState
	}
	if rec.ExpiredAt(s.now()) {
		return nil, ErrAttemptExpired
	}
	return rec, nil
}
