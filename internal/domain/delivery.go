package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of an outbound delivery.
type DeliveryStatus string

const (
	DeliveryStatusQueued  DeliveryStatus = "QUEUED"
	DeliveryStatusSending DeliveryStatus = "SENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusQueued, DeliveryStatusSending, DeliveryStatusSent, DeliveryStatusFailed:
		return true
	}
	return false
}

// Content limits per channel (in characters).
const (
	MaxPushContent  = 240
	MaxEmailContent = 10000
)

// OutboundDelivery is one email or push send scheduled for a reminder record.
type OutboundDelivery struct {
	ID                string
	ReminderID        string
	Channel           Channel
	Recipient         string
	Subject           string
	Body              string
	Priority          Priority
	Status            DeliveryStatus
	ProviderMessageID *string
	AttemptCount      int
	MaxRetries        int
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *OutboundDelivery) Validate() error {
	if d.ReminderID == "" {
		return fmt.Errorf("%w: reminder id is required", ErrValidation)
	}
	if d.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if d.Body == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if d.Channel != ChannelEmail && d.Channel != ChannelPush {
		return fmt.Errorf("%w: invalid outbound channel %q", ErrValidation, d.Channel)
	}
	if !d.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, d.Priority)
	}

	contentLen := len([]rune(d.Body))
	switch d.Channel {
	case ChannelPush:
		if contentLen > MaxPushContent {
			return fmt.Errorf("%w: push content exceeds %d characters (got %d)", ErrValidation, MaxPushContent, contentLen)
		}
	case ChannelEmail:
		if contentLen > MaxEmailContent {
			return fmt.Errorf("%w: email content exceeds %d characters (got %d)", ErrValidation, MaxEmailContent, contentLen)
		}
	}

	if strings.TrimSpace(d.Subject) == "" && d.Channel == ChannelEmail {
		return fmt.Errorf("%w: subject is required for email delivery", ErrValidation)
	}

	return nil
}

// DeliveryAttempt records a single provider call for an outbound delivery.
type DeliveryAttempt struct {
	ID            string
	DeliveryID    string
	AttemptNumber int
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	CreatedAt     time.Time
}
