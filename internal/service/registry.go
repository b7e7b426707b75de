package service

import (
	"context"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"go.uber.org/zap"
)

// Handler produces the rendered reminder for one category. Returning a nil
// content with a nil error skips the item: required payload fields are
// missing and malformed legacy data must not fail the batch. Handlers never
// touch engine bookkeeping.
type Handler interface {
	Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error)
}

// Registry is a closed dispatch table from category to handler. Unknown
// categories fall back to the generic reminder handler.
type Registry struct {
	handlers map[domain.Category]Handler
	fallback Handler
}

func NewRegistry(trigger Trigger, baseURL string, logger *zap.Logger) *Registry {
	if trigger == nil {
		trigger = NewLogTrigger(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	generic := &genericReminderHandler{baseURL: baseURL, logger: logger}

	return &Registry{
		handlers: map[domain.Category]Handler{
			domain.CategoryContactMessage:       &contactMessageHandler{baseURL: baseURL, logger: logger},
			domain.CategoryAdminActionRequired:  &adminActionHandler{baseURL: baseURL, logger: logger},
			domain.CategoryDocumentValidation:   &documentValidationHandler{baseURL: baseURL, logger: logger},
			domain.CategoryExpertAssignment:     &expertAssignmentHandler{trigger: trigger, baseURL: baseURL, logger: logger},
			domain.CategoryAppointmentScheduled: &appointmentHandler{baseURL: baseURL, logger: logger},
			domain.CategoryPaymentRequest:       &paymentRequestHandler{trigger: trigger, baseURL: baseURL, logger: logger},
			domain.CategorySignatureRequest:     &signatureRequestHandler{trigger: trigger, baseURL: baseURL, logger: logger},
			domain.CategoryDefault:              generic,
		},
		fallback: generic,
	}
}

// Dispatch resolves the handler for a category; it never returns nil.
func (r *Registry) Dispatch(category domain.Category) Handler {
	if handler, ok := r.handlers[category]; ok {
		return handler
	}
	return r.fallback
}
