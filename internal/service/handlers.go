package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"go.uber.org/zap"
)

// Payload keys category handlers read. Absence of a required key makes the
// handler a silent no-op for that item.
const (
	payloadSupervisorID = "supervisor_id"
	payloadDocumentID   = "document_id"
	payloadDocumentName = "document_name"
	payloadAssignmentID = "assignment_id"
	payloadActionType   = "action_type"
	payloadAmount       = "amount"
)

func severityPrefix(t domain.Threshold) string {
	switch t {
	case domain.ThresholdAcceptable:
		return "Second reminder"
	case domain.ThresholdCritical:
		return "URGENT"
	case domain.ThresholdOverdue:
		return "Overdue"
	default:
		return "Reminder"
	}
}

func contentPriority(cand Candidate) domain.Priority {
	if cand.Threshold == domain.ThresholdCritical {
		return domain.PriorityUrgent
	}
	if cand.Policy.DefaultPriority.IsValid() {
		return cand.Policy.DefaultPriority
	}
	return domain.PriorityMedium
}

// leadURL is the audience-specific deep link to the same underlying item.
func leadURL(baseURL string, kind domain.RecipientKind, itemID string) string {
	base := strings.TrimRight(baseURL, "/")
	switch kind {
	case domain.RecipientStaff:
		return fmt.Sprintf("%s/admin/contact/%s", base, itemID)
	case domain.RecipientExpert:
		return fmt.Sprintf("%s/expert/leads/%s", base, itemID)
	case domain.RecipientPartner:
		return fmt.Sprintf("%s/partner/leads/%s", base, itemID)
	default:
		return fmt.Sprintf("%s/leads/%s", base, itemID)
	}
}

func originAudience(cand Candidate) domain.Audience {
	email, _ := cand.Item.PayloadString(domain.PayloadEmail)
	return domain.Audience{
		RecipientID:   cand.Item.RecipientID,
		RecipientKind: cand.Item.RecipientKind,
		Email:         email,
	}
}

// withEscalationAudience adds the supervising staff member at critical
// severity when the payload names one.
func withEscalationAudience(cand Candidate, audiences []domain.Audience) []domain.Audience {
	if cand.Threshold != domain.ThresholdCritical {
		return audiences
	}
	supervisorID, ok := cand.Item.PayloadString(payloadSupervisorID)
	if !ok {
		return audiences
	}
	return append(audiences, domain.Audience{
		RecipientID:   supervisorID,
		RecipientKind: domain.RecipientStaff,
	})
}

// contactMessageHandler synthesizes the stale contact/lead reminder.
type contactMessageHandler struct {
	baseURL string
	logger  *zap.Logger
}

func (h *contactMessageHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	name, ok := cand.Item.PayloadString(domain.PayloadName)
	if !ok {
		h.logger.Warn("contact reminder missing name, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}
	if _, ok := cand.Item.PayloadString(domain.PayloadEmail); !ok {
		h.logger.Warn("contact reminder missing email, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	subject := fmt.Sprintf("%s: contact from %s awaiting reply", severityPrefix(cand.Threshold), name)
	body := fmt.Sprintf(
		"The contact request from %s has been waiting for a reply for %.0f hours.",
		name, cand.HoursElapsed,
	)

	return &domain.ReminderContent{
		Subject:   subject,
		Body:      body,
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: withEscalationAudience(cand, []domain.Audience{originAudience(cand)}),
		Supersede: true,
	}, nil
}

// adminActionHandler reminds staff about a pending back-office action.
type adminActionHandler struct {
	baseURL string
	logger  *zap.Logger
}

func (h *adminActionHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	actionType, ok := cand.Item.PayloadString(payloadActionType)
	if !ok {
		h.logger.Warn("admin action reminder missing action type, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: pending action %s", severityPrefix(cand.Threshold), actionType),
		Body: fmt.Sprintf(
			"The action %q has required attention for %.0f hours.",
			actionType, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, domain.RecipientStaff, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: []domain.Audience{originAudience(cand)},
	}, nil
}

// documentValidationHandler reminds about pending or rejected documents.
// Newer reminders supersede earlier unread ones for the same document.
type documentValidationHandler struct {
	baseURL string
	logger  *zap.Logger
}

func (h *documentValidationHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	if _, ok := cand.Item.PayloadString(payloadDocumentID); !ok {
		h.logger.Warn("document reminder missing document id, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}
	documentName, ok := cand.Item.PayloadString(payloadDocumentName)
	if !ok {
		h.logger.Warn("document reminder missing document name, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: document %q awaiting validation", severityPrefix(cand.Threshold), documentName),
		Body: fmt.Sprintf(
			"The document %q has been awaiting validation for %.0f hours.",
			documentName, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: withEscalationAudience(cand, []domain.Audience{originAudience(cand)}),
		Supersede: true,
	}, nil
}

// expertAssignmentHandler nudges an expert about an idle assignment and
// re-issues the assignment notification through the business trigger.
type expertAssignmentHandler struct {
	trigger Trigger
	baseURL string
	logger  *zap.Logger
}

func (h *expertAssignmentHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	assignmentID, ok := cand.Item.PayloadString(payloadAssignmentID)
	if !ok {
		h.logger.Warn("assignment reminder missing assignment id, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	if err := h.trigger.RemindAssignment(ctx, cand.Item.RecipientID, assignmentID); err != nil {
		return nil, fmt.Errorf("failed to re-issue assignment reminder: %w", err)
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: assignment awaiting action", severityPrefix(cand.Threshold)),
		Body: fmt.Sprintf(
			"Assignment %s has been idle for %.0f hours.",
			assignmentID, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, domain.RecipientExpert, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: withEscalationAudience(cand, []domain.Audience{originAudience(cand)}),
	}, nil
}

// appointmentHandler covers scheduled appointments: threshold reminders
// before confirmation and the one-shot "starting now" signal.
type appointmentHandler struct {
	baseURL string
	logger  *zap.Logger
}

func (h *appointmentHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	title := cand.Item.Title
	if strings.TrimSpace(title) == "" {
		title = "your appointment"
	}

	if cand.StartingNow {
		return &domain.ReminderContent{
			Subject:   fmt.Sprintf("Starting now: %s", title),
			Body:      fmt.Sprintf("%s is starting now.", title),
			ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
			Priority:  domain.PriorityUrgent,
			Audiences: []domain.Audience{originAudience(cand)},
		}, nil
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: %s still unconfirmed", severityPrefix(cand.Threshold), title),
		Body: fmt.Sprintf(
			"%s was scheduled %.0f hours ago and is still awaiting follow-up.",
			title, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: []domain.Audience{originAudience(cand)},
	}, nil
}

// paymentRequestHandler follows up on an unpaid request.
type paymentRequestHandler struct {
	trigger Trigger
	baseURL string
	logger  *zap.Logger
}

func (h *paymentRequestHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	amount, ok := cand.Item.PayloadFloat(payloadAmount)
	if !ok || amount <= 0 {
		h.logger.Warn("payment reminder missing amount, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	if err := h.trigger.RequestPayment(ctx, cand.Item.RecipientID, amount); err != nil {
		return nil, fmt.Errorf("failed to re-issue payment request: %w", err)
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: payment of €%.2f outstanding", severityPrefix(cand.Threshold), amount),
		Body: fmt.Sprintf(
			"A payment of €%.2f has been outstanding for %.0f hours.",
			amount, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: withEscalationAudience(cand, []domain.Audience{originAudience(cand)}),
	}, nil
}

// signatureRequestHandler re-issues an unanswered signature request.
type signatureRequestHandler struct {
	trigger Trigger
	baseURL string
	logger  *zap.Logger
}

func (h *signatureRequestHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	documentID, ok := cand.Item.PayloadString(payloadDocumentID)
	if !ok {
		h.logger.Warn("signature reminder missing document id, skipping",
			zap.String("itemId", cand.Item.ID),
		)
		return nil, nil
	}

	if err := h.trigger.RequestSignature(ctx, cand.Item.RecipientID, documentID); err != nil {
		return nil, fmt.Errorf("failed to re-issue signature request: %w", err)
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: signature still required", severityPrefix(cand.Threshold)),
		Body: fmt.Sprintf(
			"Document %s has been awaiting signature for %.0f hours.",
			documentID, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: withEscalationAudience(cand, []domain.Audience{originAudience(cand)}),
	}, nil
}

// genericReminderHandler serves categories without dedicated logic, notably
// due-anchored items on a rolling window.
type genericReminderHandler struct {
	baseURL string
	logger  *zap.Logger
}

func (h *genericReminderHandler) Handle(ctx context.Context, cand Candidate) (*domain.ReminderContent, error) {
	title := cand.Item.Title
	if strings.TrimSpace(title) == "" {
		title = cand.Item.Category.String()
	}

	return &domain.ReminderContent{
		Subject: fmt.Sprintf("%s: %s", severityPrefix(cand.Threshold), title),
		Body: fmt.Sprintf(
			"%s has been pending for %.0f hours.",
			title, cand.HoursElapsed,
		),
		ActionURL: leadURL(h.baseURL, cand.Item.RecipientKind, cand.Item.ID),
		Priority:  contentPriority(cand),
		Audiences: []domain.Audience{originAudience(cand)},
	}, nil
}
