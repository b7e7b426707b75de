package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// DeliveryMessage is the broker payload for outbound delivery processing.
type DeliveryMessage struct {
	DeliveryID string          `json:"deliveryId"`
	ReminderID string          `json:"reminderId,omitempty"`
	Channel    domain.Channel  `json:"channel"`
	Priority   domain.Priority `json:"priority"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if m.Channel != domain.ChannelEmail && m.Channel != domain.ChannelPush {
		return fmt.Errorf("invalid outbound channel %q", m.Channel)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}
