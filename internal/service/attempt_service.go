package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

// Attempt lifecycle errors, mapped to response codes at the handler boundary.
var (
	ErrMaxAttemptsExceeded = errors.New("maximum attempts reached")
	ErrAttemptExpired      = errors.New("attempt deadline has passed")
	ErrInvalidState        = errors.New("operation not valid for the record's state")
	ErrNotOwner            = errors.New("record belongs to another user")
	ErrReviewNotAllowed    = errors.New("review is not allowed for this session")
)

// SessionStore resolves session configuration. Read-only from here.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
}

// PaperStore resolves papers with their answer keys.
type PaperStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Paper, error)
}

// RecordStore is the durable side of attempt state.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamRecord, error)
	GetInProgress(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error)
	GetLatest(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error)
	CountAttempts(ctx context.Context, sessionID uuid.UUID, userID int) (int, error)
	Create(ctx context.Context, rec *model.ExamRecord) error
	Finalize(ctx context.Context, rec *model.ExamRecord) (bool, error)
	ListAnswers(ctx context.Context, recordID uuid.UUID) ([]model.Answer, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.ExamRecord, error)
}

// Ledger is the hot store for in-progress answers.
type Ledger interface {
	Upsert(ctx context.Context, recordID, questionID uuid.UUID, answer json.RawMessage, timeSpent int) error
	GetAll(ctx context.Context, recordID uuid.UUID) (map[uuid.UUID]model.Answer, error)
	Count(ctx context.Context, recordID uuid.UUID) (int, error)
	Clear(ctx context.Context, recordID uuid.UUID) error
}

// EventSink receives write-behind work and live-monitor events.
type EventSink interface {
	EnqueueAnswerPersist(ctx context.Context, item model.AnswerPersistItem) error
	EnqueueStats(ctx context.Context, item model.SessionStatsItem) error
	PublishMonitor(ctx context.Context, sessionID uuid.UUID, event model.MonitorEvent)
}

// AttemptService drives the attempt lifecycle: join, start, answer,
// progress, submit, review. Expiry is lazy; any call that touches an
// over-deadline in_progress record finalizes it as expired first, through
// the same scoring path submit uses.
type AttemptService struct {
	sessions SessionStore
	papers   PaperStore
	records  RecordStore
	ledger   Ledger
	events   EventSink
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(sessions SessionStore, papers PaperStore, records RecordStore, ledger Ledger, events EventSink) *AttemptService {
	return &AttemptService{
		sessions: sessions,
		papers:   papers,
		records:  records,
		ledger:   ledger,
		events:   events,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// Join returns the session metadata and the caller's attempt standing. It
// performs the window check so a student sees "not open yet" before ever
// trying to start.
func (s *AttemptService) Join(ctx context.Context, sessionID uuid.UUID, userID int) (*model.SessionJoinInfo, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := CheckWindow(session, s.now()); err != nil {
		return nil, err
	}

	paper, err := s.papers.GetByID(ctx, session.PaperID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.records.CountAttempts(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	info := &model.SessionJoinInfo{
		Session:        session,
		TotalQuestions: len(paper.Questions),
		AttemptsUsed:   attempts,
		MaxAttempts:    session.MaxAttempts,
	}

	if live, err := s.records.GetInProgress(ctx, sessionID, userID); err == nil {
		if !live.ExpiredAt(s.now()) {
			id := live.ID
			info.ActiveRecordID = &id
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return info, nil
}

// StartResult is what a successful (or resumed) start hands the client.
type StartResult struct {
	Record    *model.ExamRecord        `json:"record"`
	Questions []model.QuestionForTaker `json:"questions"`
	Resumed   bool                     `json:"resumed"`
}

// Start creates a new attempt or resumes the live one. Calling it twice
// without an intervening submit returns the same record id both times.
func (s *AttemptService) Start(ctx context.Context, sessionID uuid.UUID, userID int) (*StartResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := CheckWindow(session, now); err != nil {
		return nil, err
	}

	paper, err := s.papers.GetByID(ctx, session.PaperID)
	if err != nil {
		return nil, err
	}

	// Resume path. A stale over-deadline record is finalized first so it
	// stops blocking the unique in_progress slot.
	live, err := s.records.GetInProgress(ctx, sessionID, userID)
	switch {
	case err == nil:
		if !live.ExpiredAt(now) {
			return &StartResult{
				Record:    live,
				Questions: paper.QuestionsInOrder(live.QuestionOrder),
				Resumed:   true,
			}, nil
		}
		if _, err := s.expire(ctx, live, session, paper); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	attempts, err := s.records.CountAttempts(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.MaxAttempts > 0 && attempts >= session.MaxAttempts {
		return nil, ErrMaxAttemptsExceeded
	}

	rec := &model.ExamRecord{
		ID:            uuid.New(),
		SessionID:     sessionID,
		UserID:        userID,
		Status:        model.RecordStatusInProgress,
		AttemptNumber: attempts + 1,
		StartTime:     now,
		Deadline:      AttemptDeadline(session, now),
		QuestionOrder: questionOrder(session, paper, userID),
	}

	if err := s.records.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateInProgress) {
			// Lost a concurrent start race; the winner's record is ours too.
			winner, gerr := s.records.GetInProgress(ctx, sessionID, userID)
			if gerr != nil {
				return nil, gerr
			}
			return &StartResult{
				Record:    winner,
				Questions: paper.QuestionsInOrder(winner.QuestionOrder),
				Resumed:   true,
			}, nil
		}
		return nil, err
	}

	s.events.PublishMonitor(ctx, sessionID, model.MonitorEvent{
		Event:     model.EventAttemptStarted,
		SessionID: sessionID,
		RecordID:  rec.ID,
		UserID:    userID,
		Timestamp: now,
	})

	return &StartResult{
		Record:    rec,
		Questions: paper.QuestionsInOrder(rec.QuestionOrder),
	}, nil
}

// Answer records one answer. Last write wins for the answer value; time
// spent accumulates across saves for the same question.
func (s *AttemptService) Answer(ctx context.Context, recordID uuid.UUID, userID int, req *model.AnswerRequest) (int, error) {
	rec, err := s.ownedRecord(ctx, recordID, userID)
	if err != nil {
		return 0, err
	}

	switch rec.Status {
	case model.RecordStatusCompleted:
		return 0, ErrInvalidState
	case model.RecordStatusExpired:
		return 0, ErrAttemptExpired
	}

	if rec.ExpiredAt(s.now()) {
		if err := s.lazyExpire(ctx, rec); err != nil {
			return 0, err
		}
		return 0, ErrAttemptExpired
	}

	if err := s.ledger.Upsert(ctx, rec.ID, req.QuestionID, req.Answer, req.TimeSpentSeconds); err != nil {
		return 0, err
	}

	if err := s.events.EnqueueAnswerPersist(ctx, model.AnswerPersistItem{
		RecordID:         rec.ID,
		QuestionID:       req.QuestionID,
		UserAnswer:       req.Answer,
		TimeSpentSeconds: req.TimeSpentSeconds,
	}); err != nil {
		// The ledger already has the answer; the worker queue is an optimization.
		s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("enqueue answer persist failed")
	}

	count, err := s.ledger.Count(ctx, rec.ID)
	if err != nil {
		return 0, err
	}

	qid := req.QuestionID
	s.events.PublishMonitor(ctx, rec.SessionID, model.MonitorEvent{
		Event:         model.EventAnswerSaved,
		SessionID:     rec.SessionID,
		RecordID:      rec.ID,
		UserID:        userID,
		QuestionID:    &qid,
		AnsweredCount: count,
		Timestamp:     s.now(),
	})

	return count, nil
}

// AnswerInSession records an answer against the caller's running attempt in
// the session. With no running attempt the call is an invalid-state error,
// not a silent create.
func (s *AttemptService) AnswerInSession(ctx context.Context, sessionID uuid.UUID, userID int, req *model.AnswerRequest) (int, error) {
	rec, err := s.records.GetInProgress(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrInvalidState
		}
		return 0, err
	}
	return s.Answer(ctx, rec.ID, userID, req)
}

// ProgressInSession reports on the caller's running attempt, falling back to
// their most recent terminal one.
func (s *AttemptService) ProgressInSession(ctx context.Context, sessionID uuid.UUID, userID int) (*model.AttemptProgress, error) {
	rec, err := s.records.GetInProgress(ctx, sessionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		rec, err = s.records.GetLatest(ctx, sessionID, userID)
	}
	if err != nil {
		return nil, err
	}
	return s.Progress(ctx, rec.ID, userID)
}

// Progress returns the read-only attempt projection, applying lazy expiry
// first so a poll after the deadline reports the real terminal outcome.
func (s *AttemptService) Progress(ctx context.Context, recordID uuid.UUID, userID int) (*model.AttemptProgress, error) {
	rec, err := s.ownedRecord(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if rec.Status == model.RecordStatusInProgress && rec.ExpiredAt(now) {
		if err := s.lazyExpire(ctx, rec); err != nil {
			return nil, err
		}
		rec, err = s.records.GetByID(ctx, recordID)
		if err != nil {
			return nil, err
		}
	}

	progress := &model.AttemptProgress{
		RecordID:       rec.ID,
		Status:         rec.Status,
		TotalQuestions: len(rec.QuestionOrder),
	}

	if rec.Status == model.RecordStatusInProgress {
		count, err := s.ledger.Count(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		progress.AnsweredCount = count
		if remaining := rec.Deadline.Sub(now); remaining > 0 {
			progress.TimeRemainingSeconds = int(remaining.Seconds())
		}
	} else if rec.Result != nil {
		progress.AnsweredCount = rec.Result.AnsweredQuestions
	}

	return progress, nil
}

// Submit finalizes the attempt and returns the score. Idempotent: a second
// submit on a terminal record returns the stored result without re-scoring.
// A submit arriving after the deadline takes the expiry path, so only
// answers saved before expiry was detected are graded.
func (s *AttemptService) Submit(ctx context.Context, recordID uuid.UUID, userID int) (*model.ScoreResult, error) {
	rec, err := s.ownedRecord(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}

	if rec.Status.Terminal() {
		return rec.Result, nil
	}

	if rec.ExpiredAt(s.now()) {
		result, err := s.lazyExpireResult(ctx, rec)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	session, paper, err := s.resolvePair(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}

	endTime := s.now()
	result, err := s.finalize(ctx, rec, session, paper, model.RecordStatusCompleted, endTime)
	if err != nil {
		return nil, err
	}

	score := result.Score
	s.events.PublishMonitor(ctx, rec.SessionID, model.MonitorEvent{
		Event:         model.EventAttemptSubmitted,
		SessionID:     rec.SessionID,
		RecordID:      rec.ID,
		UserID:        rec.UserID,
		AnsweredCount: result.AnsweredQuestions,
		Score:         &score,
		Timestamp:     endTime,
	})

	return result, nil
}

// Result returns the stored score for a finished attempt. Lazy expiry runs
// first so asking for the result of an overdue attempt finalizes it.
func (s *AttemptService) Result(ctx context.Context, recordID uuid.UUID, userID int) (*model.ScoreResult, error) {
	rec, err := s.ownedRecord(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.RecordStatusInProgress {
		if !rec.ExpiredAt(s.now()) {
			return nil, ErrInvalidState
		}
		return s.lazyExpireResult(ctx, rec)
	}

	session, err := s.sessions.GetByID(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Settings.ShowResults {
		return nil, ErrReviewNotAllowed
	}

	return rec.Result, nil
}

// Review returns the finished attempt with full questions and answer keys.
// Gated on the session's allow_review setting and a terminal record.
func (s *AttemptService) Review(ctx context.Context, recordID uuid.UUID, userID int) (*model.AttemptReview, error) {
	rec, err := s.ownedRecord(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.RecordStatusInProgress {
		if !rec.ExpiredAt(s.now()) {
			return nil, ErrInvalidState
		}
		if _, err := s.lazyExpireResult(ctx, rec); err != nil {
			return nil, err
		}
		rec, err = s.records.GetByID(ctx, recordID)
		if err != nil {
			return nil, err
		}
	}

	session, paper, err := s.resolvePair(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Settings.AllowReview {
		return nil, ErrReviewNotAllowed
	}

	answers, err := s.records.ListAnswers(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(rec.QuestionOrder))
	for _, id := range rec.QuestionOrder {
		if q := paper.QuestionByID(id); q != nil {
			questions = append(questions, *q)
		}
	}

	return &model.AttemptReview{
		RecordID:  rec.ID,
		Status:    rec.Status,
		Questions: questions,
		Answers:   answers,
		Result:    rec.Result,
	}, nil
}

// History lists the caller's finished and running attempts, newest first.
func (s *AttemptService) History(ctx context.Context, userID, limit, offset int) ([]model.ExamRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.records.ListByUser(ctx, userID, limit, offset)
}

func (s *AttemptService) ownedRecord(ctx context.Context, recordID uuid.UUID, userID int) (*model.ExamRecord, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrNotOwner
	}
	return rec, nil
}

func (s *AttemptService) resolvePair(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, *model.Paper, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	paper, err := s.papers.GetByID(ctx, session.PaperID)
	if err != nil {
		return nil, nil, err
	}
	return session, paper, nil
}

func (s *AttemptService) lazyExpire(ctx context.Context, rec *model.ExamRecord) error {
	_, err := s.lazyExpireResult(ctx, rec)
	return err
}

func (s *AttemptService) lazyExpireResult(ctx context.Context, rec *model.ExamRecord) (*model.ScoreResult, error) {
	session, paper, err := s.resolvePair(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	return s.expire(ctx, rec, session, paper)
}

// expire finalizes an over-deadline record through the same scoring path as
// submit. The attempt's end time is the deadline itself, not the instant the
// expiry happened to be noticed.
func (s *AttemptService) expire(ctx context.Context, rec *model.ExamRecord, session *model.ExamSession, paper *model.Paper) (*model.ScoreResult, error) {
	result, err := s.finalize(ctx, rec, session, paper, model.RecordStatusExpired, rec.Deadline)
	if err != nil {
		return nil, err
	}

	s.events.PublishMonitor(ctx, rec.SessionID, model.MonitorEvent{
		Event:         model.EventAttemptExpired,
		SessionID:     rec.SessionID,
		RecordID:      rec.ID,
		UserID:        rec.UserID,
		AnsweredCount: result.AnsweredQuestions,
		Timestamp:     s.now(),
	})

	return result, nil
}

// finalize scores the ledger snapshot and moves the record to a terminal
// state. Exactly one caller wins when several race; losers read back the
// winner's stored result.
func (s *AttemptService) finalize(ctx context.Context, rec *model.ExamRecord, session *model.ExamSession, paper *model.Paper, status model.RecordStatus, endTime time.Time) (*model.ScoreResult, error) {
	answers, err := s.ledger.GetAll(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	result := Score(answers, paper, session.Settings.PassingScore, rec.StartTime, endTime)
	result.RecordID = rec.ID
	result.SessionID = rec.SessionID

	rec.Status = status
	rec.EndTime = &endTime
	rec.Result = result
	rec.Answers = scoredAnswers(answers, result)

	won, err := s.records.Finalize(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !won {
		stored, err := s.records.GetByID(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		*rec = *stored
		return stored.Result, nil
	}

	if err := s.ledger.Clear(ctx, rec.ID); err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("ledger clear failed")
	}

	if err := s.events.EnqueueStats(ctx, model.SessionStatsItem{
		SessionID: rec.SessionID,
		RecordID:  rec.ID,
		Score:     result.Score,
		IsPassed:  result.IsPassed,
		Expired:   status == model.RecordStatusExpired,
	}); err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("enqueue stats failed")
	}

	return result, nil
}

// scoredAnswers merges the ledger snapshot with per-question grading so the
// durable answer rows carry correctness and points.
func scoredAnswers(answers map[uuid.UUID]model.Answer, result *model.ScoreResult) []model.Answer {
	out := make([]model.Answer, 0, len(answers))
	for _, qs := range result.Questions {
		ans, ok := answers[qs.QuestionID]
		if !ok {
			continue
		}
		correct := qs.IsCorrect
		ans.IsCorrect = &correct
		ans.PointsAwarded = qs.PointsAwarded
		out = append(out, ans)
	}
	return out
}

// questionOrder snapshots the paper order for a new attempt. With shuffling
// on, the permutation is seeded from (session, user) so a reload mid-attempt
// reproduces the exact same order.
func questionOrder(session *model.ExamSession, paper *model.Paper, userID int) []uuid.UUID {
	order := make([]uuid.UUID, len(paper.Questions))
	for i, q := range paper.Questions {
		order[i] = q.ID
	}

	if !session.Settings.ShuffleQuestions {
		return order
	}

	h := fnv.New64a()
	h.Write(session.ID[:])
	fmt.Fprintf(h, "%d", userID)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
