package provider

import (
	"context"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// Notifier is the outbound delivery port. The engine hands it fully rendered
// content, never templates.
type Notifier interface {
	Send(ctx context.Context, delivery domain.OutboundDelivery) (*NotifierResponse, error)
}

// NotifierResponse stores provider call metadata for audit and persistence.
type NotifierResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
