// Package lra implements the coordinator's lifecycle engine, recovery
// scanner, and object-store backends for Long-Running Actions (LRAs) — the
// compensation-based saga model used to coordinate distributed HTTP
// participants without two-phase commit.
package lra

import (
	"time"
)

// Status is the lifecycle state of an LRA.
type Status string

const (
	StatusActive         Status = "Active"
	StatusClosing        Status = "Closing"
	StatusCancelling     Status = "Cancelling"
	StatusClosed         Status = "Closed"
	StatusCancelled      Status = "Cancelled"
	StatusFailedToClose  Status = "FailedToClose"
	StatusFailedToCancel Status = "FailedToCancel"
)

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusFailedToClose, StatusFailedToCancel:
		return true
	default:
		return false
	}
}

// EndPhaseInFlight reports whether the driver owns this LRA right now.
func (s Status) EndPhaseInFlight() bool {
	return s == StatusClosing || s == StatusCancelling
}

// ValidStatus reports whether s is one of the known lifecycle states, for
// validating a caller-supplied status filter before it reaches a query.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusClosing, StatusCancelling, StatusClosed,
		StatusCancelled, StatusFailedToClose, StatusFailedToCancel:
		return true
	default:
		return false
	}
}

// ParticipantStatus tracks a single participant's compensation/completion
// outcome, independent of the owning LRA's overall status.
type ParticipantStatus string

const (
	ParticipantActive              ParticipantStatus = "Active"
	ParticipantCompleting          ParticipantStatus = "Completing"
	ParticipantCompleted           ParticipantStatus = "Completed"
	ParticipantCompensating        ParticipantStatus = "Compensating"
	ParticipantCompensated         ParticipantStatus = "Compensated"
	ParticipantFailedToComplete    ParticipantStatus = "FailedToComplete"
	ParticipantFailedToCompensate  ParticipantStatus = "FailedToCompensate"
)

// Terminal reports whether this participant outcome is sticky — once
// reached, the driver never calls that participant's end-phase URL again.
func (s ParticipantStatus) Terminal() bool {
	switch s {
	case ParticipantCompleted, ParticipantCompensated, ParticipantFailedToComplete, ParticipantFailedToCompensate:
		return true
	default:
		return false
	}
}

// Participant is a single joined party of an LRA: the set of callback URLs
// Narayana-LRA-style clients register with on join, plus the participant's
// own outcome status and recovery URI. Retry/backoff state is not stored
// here; it lives only inside the driver's retry loop.
type Participant struct {
	UID           string            `json:"uid"`
	LinkHeader    string            `json:"link"`
	CompensateURL string            `json:"compensateUrl,omitempty"`
	CompleteURL   string            `json:"completeUrl,omitempty"`
	StatusURL     string            `json:"statusUrl,omitempty"`
	ForgetURL     string            `json:"forgetUrl,omitempty"`
	AfterURL      string            `json:"afterUrl,omitempty"`
	Status        ParticipantStatus `json:"status"`
	RecoveryURI   string            `json:"recoveryUri,omitempty"`
}

// Clone returns a deep-enough copy for safe use outside the engine's lock.
func (p *Participant) Clone() *Participant {
	cp := *p
	return &cp
}

// LRA is the full record of a Long-Running Action: its identity, its
// lifecycle status, and its participants. LRA itself carries no
// concurrency primitives — it is a plain value type, safe to copy, marshal,
// and hand to callers. Mutual exclusion over a given LRA's mutation lives
// in the engine's lraHandle wrapper, never inside the data type itself.
type LRA struct {
	ID           string         `json:"lraId"`
	ParentID     string         `json:"parentId,omitempty"`
	ClientID     string         `json:"clientId,omitempty"`
	Status       Status         `json:"status"`
	StartTime    time.Time      `json:"startTime"`
	TimeLimit    time.Duration  `json:"timeLimit,omitempty"`
	Participants []*Participant `json:"participants"`
	Children     []string       `json:"children,omitempty"`
}

// FailedLRA is the durable record of an LRA whose end-phase driver could not
// drive every participant to a terminal state; recovery repeatedly retries
// these until every participant's outcome is terminal.
type FailedLRA struct {
	LRA
	FailedAt time.Time `json:"failedAt"`
	Reason   string    `json:"reason,omitempty"`
}

// Clone returns a deep copy of the LRA, safe to read or serialize without
// holding the owning handle's lock.
func (l *LRA) Clone() LRA {
	participants := make([]*Participant, len(l.Participants))
	for i, p := range l.Participants {
		participants[i] = p.Clone()
	}
	children := make([]string, len(l.Children))
	copy(children, l.Children)
	return LRA{
		ID:           l.ID,
		ParentID:     l.ParentID,
		ClientID:     l.ClientID,
		Status:       l.Status,
		StartTime:    l.StartTime,
		TimeLimit:    l.TimeLimit,
		Participants: participants,
		Children:     children,
	}
}

// AllParticipantsTerminal reports whether every participant has reached a
// sticky terminal outcome — the condition under which the end-phase driver
// may finally mark the LRA itself Closed/Cancelled.
func (l *LRA) AllParticipantsTerminal() bool {
	for _, p := range l.Participants {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}

// Expired reports whether the LRA has outlived its TimeLimit. A zero or
// negative TimeLimit means "no limit" (see DESIGN.md open-question decision).
func (l *LRA) Expired(now time.Time) bool {
	if l.TimeLimit <= 0 {
		return false
	}
	return now.Sub(l.StartTime) >= l.TimeLimit
}
