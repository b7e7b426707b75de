package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus represents the lifecycle state of a trackable item.
type ItemStatus string

const (
	ItemStatusUnread   ItemStatus = "UNREAD"
	ItemStatusActive   ItemStatus = "ACTIVE"
	ItemStatusLate     ItemStatus = "LATE"
	ItemStatusRead     ItemStatus = "READ"
	ItemStatusArchived ItemStatus = "ARCHIVED"
	ItemStatusReplaced ItemStatus = "REPLACED"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusUnread, ItemStatusActive, ItemStatusLate, ItemStatusRead, ItemStatusArchived, ItemStatusReplaced:
		return true
	}
	return false
}

func ParseItemStatusFromString(s string) (ItemStatus, error) {
	st := ItemStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid item status %q", ErrValidation, s)
	}
	return st, nil
}

// RecipientKind distinguishes the audience a record belongs to.
type RecipientKind string

const (
	RecipientStaff   RecipientKind = "STAFF"
	RecipientExpert  RecipientKind = "EXPERT"
	RecipientClient  RecipientKind = "CLIENT"
	RecipientPartner RecipientKind = "PARTNER"
)

func (k RecipientKind) String() string { return string(k) }

func (k RecipientKind) IsValid() bool {
	switch k {
	case RecipientStaff, RecipientExpert, RecipientClient, RecipientPartner:
		return true
	}
	return false
}

func ParseRecipientKindFromString(s string) (RecipientKind, error) {
	k := RecipientKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, s)
	}
	return k, nil
}

// Category keys the SLA policy catalog and the handler registry.
type Category string

const (
	CategoryContactMessage       Category = "contact_message"
	CategoryAdminActionRequired  Category = "admin_action_required"
	CategoryDocumentValidation   Category = "document_validation"
	CategoryExpertAssignment     Category = "expert_assignment"
	CategoryAppointmentScheduled Category = "appointment_scheduled"
	CategoryPaymentRequest       Category = "payment_request"
	CategorySignatureRequest     Category = "signature_request"
	CategoryDefault              Category = "default"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryContactMessage, CategoryAdminActionRequired, CategoryDocumentValidation,
		CategoryExpertAssignment, CategoryAppointmentScheduled, CategoryPaymentRequest,
		CategorySignatureRequest, CategoryDefault:
		return true
	}
	return false
}

// Threshold is an hour-count SLA boundary for a category.
type Threshold string

const (
	ThresholdTarget     Threshold = "target"
	ThresholdAcceptable Threshold = "acceptable"
	ThresholdCritical   Threshold = "critical"

	// ThresholdOverdue marks the single undifferentiated crossing of a
	// due-anchored item's rolling deadline.
	ThresholdOverdue Threshold = "overdue"
)

func (t Threshold) String() string { return string(t) }

func (t Threshold) IsValid() bool {
	switch t {
	case ThresholdTarget, ThresholdAcceptable, ThresholdCritical, ThresholdOverdue:
		return true
	}
	return false
}

// ThresholdsBySeverity lists graded thresholds from most to least severe,
// the order in which crossings are evaluated.
var ThresholdsBySeverity = []Threshold{ThresholdCritical, ThresholdAcceptable, ThresholdTarget}

// LowerThresholds returns the graded thresholds strictly less severe than t.
func LowerThresholds(t Threshold) []Threshold {
	switch t {
	case ThresholdCritical:
		return []Threshold{ThresholdAcceptable, ThresholdTarget}
	case ThresholdAcceptable:
		return []Threshold{ThresholdTarget}
	}
	return nil
}

// Priority represents the business priority of an item or reminder.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// MaxEscalationLevel caps reminders per item; capped items never fire again.
const MaxEscalationLevel = 3

// EngineState is the engine-private bookkeeping kept alongside, but validated
// independently of, the category payload.
type EngineState struct {
	EscalationLevel  int                `json:"escalation_level"`
	DueAt            *time.Time         `json:"due_at,omitempty"`
	RemindersSent    map[Threshold]bool `json:"reminders_sent,omitempty"`
	LastEscalationAt *time.Time         `json:"last_escalation_at,omitempty"`
	StartingNotified bool               `json:"starting_notified,omitempty"`
}

func (s EngineState) ReminderSent(t Threshold) bool {
	return s.RemindersSent[t]
}

func (s EngineState) Capped() bool {
	return s.EscalationLevel >= MaxEscalationLevel
}

// Clone returns a deep copy so state patches never alias the loaded item.
func (s EngineState) Clone() EngineState {
	out := s
	if s.RemindersSent != nil {
		out.RemindersSent = make(map[Threshold]bool, len(s.RemindersSent))
		for k, v := range s.RemindersSent {
			out.RemindersSent[k] = v
		}
	}
	return out
}

// TrackableItem is anything the engine watches: a notification record or a
// case-file action slot. Payload holds category-specific fields; State holds
// engine bookkeeping.
type TrackableItem struct {
	ID            string
	RecipientID   string
	RecipientKind RecipientKind
	Category      Category
	Status        ItemStatus
	Resolved      bool
	Priority      Priority
	Title         string
	Body          string
	Payload       map[string]any
	State         EngineState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i *TrackableItem) Validate() error {
	if i.RecipientID == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if !i.RecipientKind.IsValid() {
		return fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, i.RecipientKind)
	}
	if strings.TrimSpace(i.Category.String()) == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: invalid item status %q", ErrValidation, i.Status)
	}
	if !i.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, i.Priority)
	}
	if i.State.EscalationLevel < 0 {
		return fmt.Errorf("%w: escalation level must not be negative", ErrValidation)
	}
	return nil
}

// PayloadString reads an optional string field from the payload bag.
func (i *TrackableItem) PayloadString(key string) (string, bool) {
	if i.Payload == nil {
		return "", false
	}
	value, ok := i.Payload[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// PayloadFloat reads an optional numeric field from the payload bag. JSON
// round-trips land numbers as float64.
func (i *TrackableItem) PayloadFloat(key string) (float64, bool) {
	if i.Payload == nil {
		return 0, false
	}
	switch v := i.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
