// Package audit records privileged mutations as structured log entries.
// Admission decisions are already visible in request logs and metrics; the
// audit trail is for actions that change data an operator may need to
// account for later: event deactivation, admin bootstrap.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Recorder writes audit entries through zerolog so they share the process
// log stream and its formatting.
type Recorder struct {
	logger zerolog.Logger
}

func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger.With().Str("component", "audit").Logger()}
}

// Record writes one entry. A zero timestamp is filled with the current time.
func (r *Recorder) Record(entry Entry) {
	if r == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	level := zerolog.InfoLevel
	if entry.Status == StatusFailure {
		level = zerolog.WarnLevel
	}
	event := r.logger.WithLevel(level)
	event.
		Time("audit_time", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		event.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		event.Str("resource_id", entry.ResourceID)
	}
	for k, v := range entry.Details {
		event.Str("detail_"+k, v)
	}
	event.Msg("audit")
}

// Success records a completed privileged action.
func (r *Recorder) Success(action, actor, resourceType, resourceID string) {
	r.Record(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
	})
}

// Failure records a privileged action that was attempted but did not take
// effect, with the reason in the details.
func (r *Recorder) Failure(action, actor, resourceType, resourceID, reason string) {
	r.Record(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusFailure,
		Details:      map[string]string{"reason": reason},
	})
}
