// Package audit provides a high-volume structured event stream for LRA
// lifecycle transitions, distinct from the coordinator's general service
// logs: built on zerolog for its zero-allocation encoder rather than the
// logrus-based infrastructure/logging package used elsewhere.
package audit

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger emits one structured line per LRA/participant transition.
type Logger struct {
	zl zerolog.Logger
}

// New constructs an audit Logger writing JSON lines to w (os.Stdout in
// production; an in-memory buffer in tests).
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Event records a single named transition with structured fields.
func (l *Logger) Event(event, lraID string, fields map[string]string) {
	if l == nil {
		return
	}
	ev := l.zl.Info().Str("event", event).Str("lra_id", lraID).Time("at", time.Now())
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg(event)
}

// Started records lra.started.
func (l *Logger) Started(lraID, parentID, clientID string) {
	l.Event("lra.started", lraID, map[string]string{"parent_id": parentID, "client_id": clientID})
}

// EndPhaseBegan records lra.closing or lra.cancelling.
func (l *Logger) EndPhaseBegan(lraID string, cancel bool) {
	event := "lra.closing"
	if cancel {
		event = "lra.cancelling"
	}
	l.Event(event, lraID, nil)
}

// EndPhaseFinished records the terminal outcome of a driver pass.
func (l *Logger) EndPhaseFinished(lraID string, status string) {
	l.Event("lra.end_phase_finished", lraID, map[string]string{"status": status})
}

// ParticipantOutcome records a single participant's terminal/non-terminal
// callback result.
func (l *Logger) ParticipantOutcome(lraID, participantUID, outcome string) {
	l.Event("participant.outcome", lraID, map[string]string{
		"participant_uid": participantUID,
		"outcome":         outcome,
	})
}

// RecoveryScan records one completed recovery pass.
func (l *Logger) RecoveryScan(recovered, stillFailed int) {
	l.zl.Info().
		Str("event", "recovery.scan_completed").
		Int("recovered", recovered).
		Int("still_failed", stillFailed).
		Msg("recovery scan completed")
}
