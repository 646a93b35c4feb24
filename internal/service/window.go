package service

import (
	"errors"
	"time"

	"github.com/examly/examly-backend/internal/model"
)

// Window validation errors. Each maps to a distinct response code so the
// client can tell "come back later" apart from "too late".
var (
	ErrSessionNotAvailable = errors.New("session is not open for attempts")
	ErrNotStartedYet       = errors.New("session has not started yet")
	ErrSessionClosed       = errors.New("session window has closed")
)

// CheckWindow reports whether a session can be entered at the given instant.
// Boundary rule: the opening instant is joinable, the closing instant is
// still joinable, and the session is closed only strictly after it.
//
// A scheduled session is enterable while active, or while published with the
// instant inside its window; publishing makes the announced window binding
// without the author flipping the status at the opening bell. On-demand
// sessions require active.
func CheckWindow(session *model.ExamSession, now time.Time) error {
	switch session.Mode {
	case model.SessionModeScheduled:
		if session.Status != model.SessionStatusActive && session.Status != model.SessionStatusPublished {
			return ErrSessionNotAvailable
		}
		if session.StartTime == nil || session.EndTime == nil {
			return ErrSessionNotAvailable
		}
		if now.Before(*session.StartTime) {
			return ErrNotStartedYet
		}
		if now.After(*session.EndTime) {
			return ErrSessionClosed
		}
	case model.SessionModeOnDemand:
		if session.Status != model.SessionStatusActive {
			return ErrSessionNotAvailable
		}
		// Either bound may be absent for an open-ended availability range.
		if session.AvailableFrom != nil && now.Before(*session.AvailableFrom) {
			return ErrNotStartedYet
		}
		if session.AvailableUntil != nil && now.After(*session.AvailableUntil) {
			return ErrSessionClosed
		}
	default:
		return ErrSessionNotAvailable
	}

	return nil
}

// AttemptDeadline computes the hard deadline for an attempt started at the
// given instant. The per-attempt duration never extends past a scheduled
// session's end time.
func AttemptDeadline(session *model.ExamSession, startedAt time.Time) time.Time {
	deadline := startedAt.Add(session.Duration())
	if session.Mode == model.SessionModeScheduled && session.EndTime != nil && deadline.After(*session.EndTime) {
		deadline = *session.EndTime
	}
	if session.Mode == model.SessionModeOnDemand && session.AvailableUntil != nil && deadline.After(*session.AvailableUntil) {
		deadline = *session.AvailableUntil
	}
	return deadline
}
