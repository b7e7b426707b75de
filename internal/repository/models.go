package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// TrackableItemModel is the persistence model for the trackable_items table.
// Payload and State are stored as separate jsonb columns so category data and
// engine bookkeeping stay independently validated.
type TrackableItemModel struct {
	ID            string               `gorm:"type:uuid;primaryKey"`
	RecipientID   string               `gorm:"type:varchar(64);not null"`
	RecipientKind domain.RecipientKind `gorm:"type:varchar(10);not null"`
	Category      domain.Category      `gorm:"type:varchar(40);not null"`
	Status        domain.ItemStatus    `gorm:"type:varchar(10);not null"`
	Resolved      bool                 `gorm:"not null;default:false"`
	Priority      domain.Priority      `gorm:"type:varchar(10);not null"`
	Title         string               `gorm:"type:varchar(255)"`
	Body          string               `gorm:"type:text"`
	Payload       []byte               `gorm:"type:jsonb"`
	State         []byte               `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (TrackableItemModel) TableName() string {
	return "trackable_items"
}

// DeliveryPreferenceModel is the persistence model for delivery_preferences.
type DeliveryPreferenceModel struct {
	RecipientID   string               `gorm:"type:varchar(64);primaryKey"`
	RecipientKind domain.RecipientKind `gorm:"type:varchar(10);primaryKey"`
	Toggles       []byte               `gorm:"type:jsonb;not null"`
	Categories    []byte               `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (DeliveryPreferenceModel) TableName() string {
	return "delivery_preferences"
}

// OutboundDeliveryModel is the persistence model for outbound_deliveries.
type OutboundDeliveryModel struct {
	ID                string                `gorm:"type:uuid;primaryKey"`
	ReminderID        string                `gorm:"type:uuid;not null"`
	Channel           domain.Channel        `gorm:"type:varchar(10);not null"`
	Recipient         string                `gorm:"type:varchar(255);not null"`
	Subject           string                `gorm:"type:varchar(255)"`
	Body              string                `gorm:"type:text;not null"`
	Priority          domain.Priority       `gorm:"type:varchar(10);not null"`
	Status            domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	ProviderMessageID *string               `gorm:"type:varchar(255)"`
	AttemptCount      int                   `gorm:"not null;default:0"`
	MaxRetries        int                   `gorm:"not null;default:5"`
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (OutboundDeliveryModel) TableName() string {
	return "outbound_deliveries"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	DeliveryID    string  `gorm:"type:uuid;not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// EscalationRunModel is the persistence model for escalation_runs.
type EscalationRunModel struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	Status     domain.RunStatus `gorm:"type:varchar(20);not null"`
	Scanned    int              `gorm:"not null;default:0"`
	Fired      int              `gorm:"not null;default:0"`
	Skipped    int              `gorm:"not null;default:0"`
	Failed     int              `gorm:"not null;default:0"`
	StartedAt  time.Time        `gorm:"not null"`
	FinishedAt *time.Time
}

func (EscalationRunModel) TableName() string {
	return "escalation_runs"
}

func itemModelFromDomain(i *domain.TrackableItem) (*TrackableItemModel, error) {
	if i == nil {
		return nil, nil
	}

	state, err := json.Marshal(i.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item state: %w", err)
	}

	var payload []byte
	if i.Payload != nil {
		payload, err = json.Marshal(i.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item payload: %w", err)
		}
	}

	return &TrackableItemModel{
		ID:            i.ID,
		RecipientID:   i.RecipientID,
		RecipientKind: i.RecipientKind,
		Category:      i.Category,
		Status:        i.Status,
		Resolved:      i.Resolved,
		Priority:      i.Priority,
		Title:         i.Title,
		Body:          i.Body,
		Payload:       payload,
		State:         state,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}, nil
}

func itemModelToDomain(m *TrackableItemModel) (*domain.TrackableItem, error) {
	if m == nil {
		return nil, nil
	}

	var state domain.EngineState
	if len(m.State) > 0 {
		if err := json.Unmarshal(m.State, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item state: %w", err)
		}
	}

	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item payload: %w", err)
		}
	}

	return &domain.TrackableItem{
		ID:            m.ID,
		RecipientID:   m.RecipientID,
		RecipientKind: m.RecipientKind,
		Category:      m.Category,
		Status:        m.Status,
		Resolved:      m.Resolved,
		Priority:      m.Priority,
		Title:         m.Title,
		Body:          m.Body,
		Payload:       payload,
		State:         state,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func preferenceModelToDomain(m *DeliveryPreferenceModel) (*domain.DeliveryPreference, error) {
	if m == nil {
		return nil, nil
	}

	var toggles domain.ChannelToggles
	if len(m.Toggles) > 0 {
		if err := json.Unmarshal(m.Toggles, &toggles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preference toggles: %w", err)
		}
	}

	var categories map[domain.Category]domain.CategoryOverride
	if len(m.Categories) > 0 {
		if err := json.Unmarshal(m.Categories, &categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preference categories: %w", err)
		}
	}

	return &domain.DeliveryPreference{
		RecipientID:   m.RecipientID,
		RecipientKind: m.RecipientKind,
		Toggles:       toggles,
		Categories:    categories,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func preferenceModelFromDomain(p *domain.DeliveryPreference) (*DeliveryPreferenceModel, error) {
	if p == nil {
		return nil, nil
	}

	toggles, err := json.Marshal(p.Toggles)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference toggles: %w", err)
	}

	var categories []byte
	if p.Categories != nil {
		categories, err = json.Marshal(p.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preference categories: %w", err)
		}
	}

	return &DeliveryPreferenceModel{
		RecipientID:   p.RecipientID,
		RecipientKind: p.RecipientKind,
		Toggles:       toggles,
		Categories:    categories,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func deliveryModelFromDomain(d *domain.OutboundDelivery) *OutboundDeliveryModel {
	if d == nil {
		return nil
	}

	return &OutboundDeliveryModel{
		ID:                d.ID,
		ReminderID:        d.ReminderID,
		Channel:           d.Channel,
		Recipient:         d.Recipient,
		Subject:           d.Subject,
		Body:              d.Body,
		Priority:          d.Priority,
		Status:            d.Status,
		ProviderMessageID: d.ProviderMessageID,
		AttemptCount:      d.AttemptCount,
		MaxRetries:        d.MaxRetries,
		NextRetryAt:       d.NextRetryAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *OutboundDeliveryModel) *domain.OutboundDelivery {
	if m == nil {
		return nil
	}

	return &domain.OutboundDelivery{
		ID:                m.ID,
		ReminderID:        m.ReminderID,
		Channel:           m.Channel,
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Body:              m.Body,
		Priority:          m.Priority,
		Status:            m.Status,
		ProviderMessageID: m.ProviderMessageID,
		AttemptCount:      m.AttemptCount,
		MaxRetries:        m.MaxRetries,
		NextRetryAt:       m.NextRetryAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		DeliveryID:    a.DeliveryID,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		DeliveryID:    m.DeliveryID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func runModelFromDomain(r *domain.EscalationRun) *EscalationRunModel {
	if r == nil {
		return nil
	}

	return &EscalationRunModel{
		ID:         r.ID,
		Status:     r.Status,
		Scanned:    r.Scanned,
		Fired:      r.Fired,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func runModelToDomain(m *EscalationRunModel) *domain.EscalationRun {
	if m == nil {
		return nil
	}

	return &domain.EscalationRun{
		ID:         m.ID,
		Status:     m.Status,
		Scanned:    m.Scanned,
		Fired:      m.Fired,
		Skipped:    m.Skipped,
		Failed:     m.Failed,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}
