package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

// In-memory fakes for the service's storage interfaces.

type fakeSessions struct {
	sessions map[uuid.UUID]*model.ExamSession
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

type fakePapers struct {
	papers map[uuid.UUID]*model.Paper
}

func (f *fakePapers) GetByID(_ context.Context, id uuid.UUID) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type fakeRecords struct {
	records map[uuid.UUID]*model.ExamRecord
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[uuid.UUID]*model.ExamRecord{}}
}

func (f *fakeRecords) GetByID(_ context.Context, id uuid.UUID) (*model.ExamRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRecords) GetInProgress(_ context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error) {
	for _, r := range f.records {
		if r.SessionID == sessionID && r.UserID == userID && r.Status == model.RecordStatusInProgress {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRecords) GetLatest(_ context.Context, sessionID uuid.UUID, userID int) (*model.ExamRecord, error) {
	var latest *model.ExamRecord
	for _, r := range f.records {
		if r.SessionID != sessionID || r.UserID != userID {
			continue
		}
		if latest == nil || r.StartTime.After(latest.StartTime) {
			latest = r
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRecords) CountAttempts(_ context.Context, sessionID uuid.UUID, userID int) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.SessionID == sessionID && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) Create(_ context.Context, rec *model.ExamRecord) error {
	for _, r := range f.records {
		if r.SessionID == rec.SessionID && r.UserID == rec.UserID && r.Status == model.RecordStatusInProgress {
			return repository.ErrDuplicateInProgress
		}
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRecords) Finalize(_ context.Context, rec *model.ExamRecord) (bool, error) {
	stored, ok := f.records[rec.ID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if stored.Status != model.RecordStatusInProgress {
		return false, nil
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return true, nil
}

func (f *fakeRecords) ListAnswers(_ context.Context, recordID uuid.UUID) ([]model.Answer, error) {
	r, ok := f.records[recordID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Answers, nil
}

func (f *fakeRecords) ListByUser(_ context.Context, userID, limit, offset int) ([]model.ExamRecord, error) {
	var out []model.ExamRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeLedger struct {
	answers map[uuid.UUID]map[uuid.UUID]model.Answer
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{answers: map[uuid.UUID]map[uuid.UUID]model.Answer{}}
}

func (f *fakeLedger) Upsert(_ context.Context, recordID, questionID uuid.UUID, answer json.RawMessage, timeSpent int) error {
	if f.answers[recordID] == nil {
		f.answers[recordID] = map[uuid.UUID]model.Answer{}
	}
	prev := f.answers[recordID][questionID]
	f.answers[recordID][questionID] = model.Answer{
		QuestionID:       questionID,
		UserAnswer:       answer,
		TimeSpentSeconds: prev.TimeSpentSeconds + timeSpent,
	}
	return nil
}

func (f *fakeLedger) GetAll(_ context.Context, recordID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	out := map[uuid.UUID]model.Answer{}
	for k, v := range f.answers[recordID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeLedger) Count(_ context.Context, recordID uuid.UUID) (int, error) {
	return len(f.answers[recordID]), nil
}

func (f *fakeLedger) Clear(_ context.Context, recordID uuid.UUID) error {
	delete(f.answers, recordID)
	return nil
}

type fakeEvents struct {
	persisted []model.AnswerPersistItem
	stats     []model.SessionStatsItem
	monitor   []model.MonitorEvent
}

func (f *fakeEvents) EnqueueAnswerPersist(_ context.Context, item model.AnswerPersistItem) error {
	f.persisted = append(f.persisted, item)
	return nil
}

func (f *fakeEvents) EnqueueStats(_ context.Context, item model.SessionStatsItem) error {
	f.stats = append(f.stats, item)
	return nil
}

func (f *fakeEvents) PublishMonitor(_ context.Context, _ uuid.UUID, event model.MonitorEvent) {
	f.monitor = append(f.monitor, event)
}

// fixture wires a service around one on-demand session with a 3-question
// paper and a controllable clock.
type fixture struct {
	svc      *AttemptService
	session  *model.ExamSession
	paper    *model.Paper
	qids     []uuid.UUID
	records  *fakeRecords
	ledger   *fakeLedger
	events   *fakeEvents
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	paper, qids := testPaper()
	session := onDemandSession(nil, nil)
	session.PaperID = paper.ID
	session.MaxAttempts = 2
	session.Settings = model.SessionSettings{
		AllowReview:  true,
		ShowResults:  true,
		PassingScore: 60,
	}

	f := &fixture{
		session: session,
		paper:   paper,
		qids:    qids,
		records: newFakeRecords(),
		ledger:  newFakeLedger(),
		events:  &fakeEvents{},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	f.svc = NewAttemptService(
		&fakeSessions{sessions: map[uuid.UUID]*model.ExamSession{session.ID: session}},
		&fakePapers{papers: map[uuid.UUID]*model.Paper{paper.ID: paper}},
		f.records,
		f.ledger,
		f.events,
	)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestStartIdempotentResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Resumed {
		t.Error("first start reported resumed")
	}
	if len(first.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(first.Questions))
	}

	second, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !second.Resumed {
		t.Error("second start did not resume")
	}
	if second.Record.ID != first.Record.ID {
		t.Errorf("resume returned a different record: %s vs %s", second.Record.ID, first.Record.ID)
	}
}

func TestStartMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.svc.Start(ctx, f.session.ID, 7)
		if err != nil {
			t.Fatalf("start %d: %v", i+1, err)
		}
		if _, err := f.svc.Submit(ctx, res.Record.ID, 7); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	if _, err := f.svc.Start(ctx, f.session.ID, 7); !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Errorf("third start err = %v, want ErrMaxAttemptsExceeded", err)
	}
}

func TestStartShuffleDeterministic(t *testing.T) {
	f := newFixture(t)
	f.session.Settings.ShuffleQuestions = true

	orderA := questionOrder(f.session, f.paper, 7)
	orderB := questionOrder(f.session, f.paper, 7)
	if len(orderA) != 3 {
		t.Fatalf("order length = %d, want 3", len(orderA))
	}
	for i := range orderA {
		if orderA[i] != orderB[i] {
			t.Fatalf("same (session, user) produced different orders: %v vs %v", orderA, orderB)
		}
	}
}

func TestAnswerAccumulatesTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	qid := f.qids[0]
	if _, err := f.svc.Answer(ctx, res.Record.ID, 7, &model.AnswerRequest{
		QuestionID: qid, Answer: jsonStr("A"), TimeSpentSeconds: 5,
	}); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	count, err := f.svc.Answer(ctx, res.Record.ID, 7, &model.AnswerRequest{
		QuestionID: qid, Answer: jsonStr("B"), TimeSpentSeconds: 7,
	})
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if count != 1 {
		t.Errorf("answered count = %d, want 1 (same question twice)", count)
	}

	stored := f.ledger.answers[res.Record.ID][qid]
	if stored.TimeSpentSeconds != 12 {
		t.Errorf("TimeSpentSeconds = %d, want 12", stored.TimeSpentSeconds)
	}
	var val string
	if err := json.Unmarshal(stored.UserAnswer, &val); err != nil || val != "B" {
		t.Errorf("UserAnswer = %s, want last write %q", stored.UserAnswer, "B")
	}
}

func TestAnswerOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.svc.Answer(ctx, res.Record.ID, 99, &model.AnswerRequest{
		QuestionID: f.qids[0], Answer: jsonStr("A"),
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}
}

func TestSubmitScoresAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	answers := []model.AnswerRequest{
		{QuestionID: f.qids[0], Answer: jsonStr("B"), TimeSpentSeconds: 20},
		{QuestionID: f.qids[1], Answer: jsonList("A", "C"), TimeSpentSeconds: 40},
		{QuestionID: f.qids[2], Answer: jsonStr("state machine"), TimeSpentSeconds: 15},
	}
	for i := range answers {
		if _, err := f.svc.Answer(ctx, res.Record.ID, 7, &answers[i]); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	f.advance(10 * time.Minute)
	result, err := f.svc.Submit(ctx, res.Record.ID, 7)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 || result.Accuracy != 100 || !result.IsPassed {
		t.Errorf("result = score %v accuracy %v passed %v, want 100/100/true",
			result.Score, result.Accuracy, result.IsPassed)
	}

	again, err := f.svc.Submit(ctx, res.Record.ID, 7)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if again.Score != result.Score || again.TimeUsedSeconds != result.TimeUsedSeconds {
		t.Error("second submit re-scored instead of returning the stored result")
	}

	if len(f.events.stats) != 1 {
		t.Errorf("stats enqueued %d times, want 1", len(f.events.stats))
	}
	if _, err := f.ledger.Count(ctx, res.Record.ID); err != nil {
		t.Fatalf("ledger count: %v", err)
	}
	if n := len(f.ledger.answers[res.Record.ID]); n != 0 {
		t.Errorf("ledger not cleared after submit: %d entries", n)
	}
}

func TestLazyExpiryOnProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Answer(ctx, res.Record.ID, 7, &model.AnswerRequest{
		QuestionID: f.qids[0], Answer: jsonStr("B"), TimeSpentSeconds: 30,
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Two hours on a 60-minute session: well past the deadline.
	f.advance(2 * time.Hour)

	progress, err := f.svc.Progress(ctx, res.Record.ID, 7)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Status != model.RecordStatusExpired {
		t.Errorf("status = %s, want expired", progress.Status)
	}
	if progress.TimeRemainingSeconds != 0 {
		t.Errorf("TimeRemainingSeconds = %d, want 0", progress.TimeRemainingSeconds)
	}

	// A late submit returns the already-stored terminal result.
	result, err := f.svc.Submit(ctx, res.Record.ID, 7)
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if result.Score != 40 {
		t.Errorf("expired score = %v, want 40 (one correct answer)", result.Score)
	}

	stored, _ := f.records.GetByID(ctx, res.Record.ID)
	if stored.EndTime == nil || !stored.EndTime.Equal(stored.Deadline) {
		t.Errorf("expired end time = %v, want the deadline %v", stored.EndTime, stored.Deadline)
	}
	if len(f.events.stats) != 1 {
		t.Errorf("stats enqueued %d times, want 1", len(f.events.stats))
	}
}

func TestAnswerAfterDeadlineExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.advance(61 * time.Minute)
	_, err = f.svc.Answer(ctx, res.Record.ID, 7, &model.AnswerRequest{
		QuestionID: f.qids[0], Answer: jsonStr("B"),
	})
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("err = %v, want ErrAttemptExpired", err)
	}

	stored, _ := f.records.GetByID(ctx, res.Record.ID)
	if stored.Status != model.RecordStatusExpired {
		t.Errorf("status = %s, want expired", stored.Status)
	}
}

func TestStartAfterStaleExpiredRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.advance(2 * time.Hour)

	// The stale in_progress record is expired in passing and a second
	// attempt begins, since maxAttempts is 2.
	second, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second.Record.ID == first.Record.ID {
		t.Error("restart returned the stale record")
	}
	if second.Record.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2", second.Record.AttemptNumber)
	}

	old, _ := f.records.GetByID(ctx, first.Record.ID)
	if old.Status != model.RecordStatusExpired {
		t.Errorf("stale record status = %s, want expired", old.Status)
	}
}

func TestReviewGatedBySetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, res.Record.ID, 7); err != nil {
		t.Fatalf("submit: %v", err)
	}

	review, err := f.svc.Review(ctx, res.Record.ID, 7)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(review.Questions) != 3 {
		t.Errorf("review questions = %d, want 3", len(review.Questions))
	}

	f.session.Settings.AllowReview = false
	if _, err := f.svc.Review(ctx, res.Record.ID, 7); !errors.Is(err, ErrReviewNotAllowed) {
		t.Errorf("err = %v, want ErrReviewNotAllowed", err)
	}
}

func TestResultHiddenBySetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, res.Record.ID, 7); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.session.Settings.ShowResults = false
	if _, err := f.svc.Result(ctx, res.Record.ID, 7); !errors.Is(err, ErrReviewNotAllowed) {
		t.Errorf("err = %v, want ErrReviewNotAllowed", err)
	}
}

func TestJoinReportsStanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.Join(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if info.AttemptsUsed != 0 || info.TotalQuestions != 3 || info.ActiveRecordID != nil {
		t.Errorf("fresh join = %+v, want 0 attempts, 3 questions, no active record", info)
	}

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	info, err = f.svc.Join(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if info.ActiveRecordID == nil || *info.ActiveRecordID != res.Record.ID {
		t.Errorf("ActiveRecordID = %v, want %s", info.ActiveRecordID, res.Record.ID)
	}
}

func TestSessionKeyedAnswerAndProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No running attempt yet.
	if _, err := f.svc.AnswerInSession(ctx, f.session.ID, 7, &model.AnswerRequest{
		QuestionID: f.qids[0], Answer: jsonStr("B"),
	}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("answer without attempt err = %v, want ErrInvalidState", err)
	}

	res, err := f.svc.Start(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	count, err := f.svc.AnswerInSession(ctx, f.session.ID, 7, &model.AnswerRequest{
		QuestionID: f.qids[0], Answer: jsonStr("B"), TimeSpentSeconds: 8,
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if count != 1 {
		t.Errorf("answered count = %d, want 1", count)
	}

	progress, err := f.svc.ProgressInSession(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.RecordID != res.Record.ID || progress.AnsweredCount != 1 {
		t.Errorf("progress = %+v, want record %s with 1 answered", progress, res.Record.ID)
	}

	// After submit the session-keyed progress falls back to the latest
	// terminal attempt.
	if _, err := f.svc.Submit(ctx, res.Record.ID, 7); err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, err = f.svc.ProgressInSession(ctx, f.session.ID, 7)
	if err != nil {
		t.Fatalf("progress after submit: %v", err)
	}
	if progress.Status != model.RecordStatusCompleted {
		t.Errorf("status = %s, want completed", progress.Status)
	}
}
