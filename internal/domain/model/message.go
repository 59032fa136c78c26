package model

import (
	"time"

	"github.com/google/uuid"

	"companion-pipeline/internal/domain"
)

type MessageState string

const (
	MessageGenerating MessageState = "generating"
	MessageReady      MessageState = "ready"
	MessageFailed     MessageState = "failed"
)

// Message is the conversation-visible proxy for a job: created synchronously
// at submission time in the "generating" state and mutated only by the worker
// afterwards.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	Kind           OperationKind
	State          MessageState
	Body           string
	ResultRef      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPlaceholderMessage creates the generating-state placeholder returned to
// the submitting client for optimistic rendering.
func NewPlaceholderMessage(conversationID, authorID string, kind OperationKind, body string) (*Message, error) {
	if conversationID == "" || authorID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Kind:           kind,
		State:          MessageGenerating,
		Body:           body,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
