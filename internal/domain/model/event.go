package model

import "time"

type EventType string

const (
	EventJobUpdate EventType = "job_update"
	EventKeepAlive EventType = "keepalive"
)

// Event is the wire shape fanned out to conversation viewers.
type Event struct {
	Type           EventType `json:"type"`
	JobID          string    `json:"jobId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Status         JobStatus `json:"status,omitempty"`
	ResultRef      string    `json:"resultRef,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"ts"`
}

// NewTerminalEvent builds the job_update event for a job that just reached a
// terminal state.
func NewTerminalEvent(j *Job) Event {
	return Event{
		Type:           EventJobUpdate,
		JobID:          j.ID,
		ConversationID: j.ConversationID,
		Status:         j.Status,
		ResultRef:      j.ResultRef,
		Error:          j.LastError,
		At:             time.Now(),
	}
}

// NewKeepAliveEvent builds the periodic heartbeat event.
func NewKeepAliveEvent() Event {
	return Event{Type: EventKeepAlive, At: time.Now()}
}
