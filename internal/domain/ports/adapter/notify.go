package adapter

import "companion-pipeline/internal/domain/model"

// EventPublisher fans a terminal event out to every current viewer of a
// conversation. Publish must never block on slow consumers.
type EventPublisher interface {
	Publish(conversationID string, ev model.Event)
}
