package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

func scheduledSession(start, end time.Time) *model.ExamSession {
	return &model.ExamSession{
		ID:              uuid.New(),
		Mode:            model.SessionModeScheduled,
		Status:          model.SessionStatusActive,
		StartTime:       &start,
		EndTime:         &end,
		DurationMinutes: 60,
	}
}

func onDemandSession(from, until *time.Time) *model.ExamSession {
	return &model.ExamSession{
		ID:              uuid.New(),
		Mode:            model.SessionModeOnDemand,
		Status:          model.SessionStatusActive,
		AvailableFrom:   from,
		AvailableUntil:  until,
		DurationMinutes: 60,
	}
}

func TestCheckWindowScheduled(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	session := scheduledSession(start, end)

	tests := []struct {
		name string
		now  time.Time
		want error
	}{
		{"before start", start.Add(-time.Second), ErrNotStartedYet},
		{"exactly at start", start, nil},
		{"mid window", start.Add(time.Hour), nil},
		{"exactly at end", end, nil},
		{"just after end", end.Add(time.Second), ErrSessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckWindow(session, tt.now)
			if !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("CheckWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckWindowOnDemand(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		session *model.ExamSession
		now     time.Time
		want    error
	}{
		{"both bounds, inside", onDemandSession(&from, &until), from.Add(24 * time.Hour), nil},
		{"both bounds, at from", onDemandSession(&from, &until), from, nil},
		{"both bounds, before from", onDemandSession(&from, &until), from.Add(-time.Minute), ErrNotStartedYet},
		{"both bounds, at until", onDemandSession(&from, &until), until, nil},
		{"both bounds, after until", onDemandSession(&from, &until), until.Add(time.Minute), ErrSessionClosed},
		{"no upper bound, far future", onDemandSession(&from, nil), until.AddDate(1, 0, 0), nil},
		{"no bounds at all", onDemandSession(nil, nil), time.Now(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckWindow(tt.session, tt.now)
			if got != tt.want {
				t.Errorf("CheckWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckWindowStatusGate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := scheduledSession(start, start.Add(time.Hour))

	for _, status := range []model.SessionStatus{
		model.SessionStatusDraft,
		model.SessionStatusArchived,
	} {
		session.Status = status
		if got := CheckWindow(session, start.Add(time.Minute)); got != ErrSessionNotAvailable {
			t.Errorf("status %s: CheckWindow() = %v, want ErrSessionNotAvailable", status, got)
		}
	}

	// On-demand sessions open only once activated, never from published.
	from := start
	onDemand := onDemandSession(&from, nil)
	onDemand.Status = model.SessionStatusPublished
	if got := CheckWindow(onDemand, start.Add(time.Minute)); got != ErrSessionNotAvailable {
		t.Errorf("on-demand published: CheckWindow() = %v, want ErrSessionNotAvailable", got)
	}
}

// A published scheduled session is binding once its announced window opens;
// the author does not have to flip it to active at the opening bell.
func TestCheckWindowPublishedScheduled(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want error
	}{
		{"before window", start.Add(-time.Minute), ErrNotStartedYet},
		{"inside window", start.Add(time.Minute), nil},
		{"at end", end, nil},
		{"after window", end.Add(time.Second), ErrSessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := scheduledSession(start, end)
			session.Status = model.SessionStatusPublished
			if got := CheckWindow(session, tt.now); got != tt.want {
				t.Errorf("CheckWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttemptDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	t.Run("plain duration", func(t *testing.T) {
		session := scheduledSession(start, end)
		got := AttemptDeadline(session, start)
		if want := start.Add(60 * time.Minute); !got.Equal(want) {
			t.Errorf("AttemptDeadline() = %v, want %v", got, want)
		}
	})

	t.Run("clamped to scheduled end", func(t *testing.T) {
		session := scheduledSession(start, end)
		late := end.Add(-10 * time.Minute)
		got := AttemptDeadline(session, late)
		if !got.Equal(end) {
			t.Errorf("AttemptDeadline() = %v, want clamp to %v", got, end)
		}
	})

	t.Run("clamped to on-demand until", func(t *testing.T) {
		until := start.Add(30 * time.Minute)
		session := onDemandSession(&start, &until)
		got := AttemptDeadline(session, start)
		if !got.Equal(until) {
			t.Errorf("AttemptDeadline() = %v, want clamp to %v", got, until)
		}
	})
}
