package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"companion-pipeline/internal/domain"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition enforces the monotonic ordering
// pending -> processing -> {completed|failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// OperationKind names a billable pipeline operation.
type OperationKind string

const (
	OpImageGeneration   OperationKind = "image_generation"
	OpCompanionCreation OperationKind = "companion_creation"
	OpChatMessage       OperationKind = "chat_message"
)

func ParseOperationKind(s string) (OperationKind, error) {
	switch OperationKind(strings.ToLower(strings.TrimSpace(s))) {
	case OpImageGeneration:
		return OpImageGeneration, nil
	case OpCompanionCreation:
		return OpCompanionCreation, nil
	case OpChatMessage:
		return OpChatMessage, nil
	}
	return "", domain.ErrInvalidArgument
}

// Job is one unit of asynchronous generation work. The params bag is opaque
// to everything except the generation backend adapter.
type Job struct {
	ID             string
	ConversationID string
	RequesterID    string
	Operation      OperationKind
	Params         json.RawMessage
	Status         JobStatus
	ExternalRef    string
	ResultRef      string
	LastError      string
	MessageID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	TerminalAt     *time.Time
}

// NewJob creates a pending job. IDs are ULIDs so the queue's FIFO order
// matches the lexical order of ids.
func NewJob(conversationID, requesterID, messageID string, op OperationKind, params json.RawMessage) (*Job, error) {
	if conversationID == "" || requesterID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if len(params) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Job{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		RequesterID:    requesterID,
		Operation:      op,
		Params:         params,
		Status:         JobStatusPending,
		MessageID:      messageID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
