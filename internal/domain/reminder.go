package domain

import (
	"fmt"
	"strings"
)

// Payload keys written on every reminder record.
const (
	PayloadOriginItemID = "origin_item_id"
	PayloadThreshold    = "threshold"
	PayloadName         = "name"
	PayloadEmail        = "email"
	PayloadPhone        = "phone"
	PayloadHoursElapsed = "hours_elapsed"
	PayloadActionURL    = "action_url"
	PayloadSLAHours     = "sla_hours"
)

// Audience is one resolved addressee of a reminder.
type Audience struct {
	RecipientID   string
	RecipientKind RecipientKind
	Email         string
}

// ReminderContent is what a category handler produces: the rendered reminder
// and the audience set, never engine bookkeeping.
type ReminderContent struct {
	Subject   string
	Body      string
	ActionURL string
	Priority  Priority
	Audiences []Audience

	// Supersede marks prior unread reminders for the same origin item and a
	// lower threshold as replaced.
	Supersede bool
}

func (c *ReminderContent) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: reminder content is required", ErrValidation)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if len(c.Audiences) == 0 {
		return fmt.Errorf("%w: at least one audience is required", ErrValidation)
	}
	for _, a := range c.Audiences {
		if strings.TrimSpace(a.RecipientID) == "" {
			return fmt.Errorf("%w: audience recipient id is required", ErrValidation)
		}
		if !a.RecipientKind.IsValid() {
			return fmt.Errorf("%w: invalid audience recipient kind %q", ErrValidation, a.RecipientKind)
		}
	}
	if c.Priority != "" && !c.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, c.Priority)
	}
	return nil
}
