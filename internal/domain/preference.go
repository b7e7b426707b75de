package domain

import "time"

// Channel is a delivery channel for reminders. In-app delivery is the
// reminder record itself; email and push go through the outbound worker.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// AllChannels lists every delivery channel, gate-checked independently.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelPush}

// ChannelToggles holds per-channel on/off switches.
type ChannelToggles struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

func (t ChannelToggles) Allows(channel Channel) bool {
	switch channel {
	case ChannelInApp:
		return t.InApp
	case ChannelEmail:
		return t.Email
	case ChannelPush:
		return t.Push
	}
	return false
}

func (t ChannelToggles) AnyEnabled() bool {
	return t.InApp || t.Email || t.Push
}

// CategoryOverride narrows delivery for one category, optionally per SLA level.
type CategoryOverride struct {
	Toggles ChannelToggles               `json:"toggles"`
	Levels  map[Threshold]ChannelToggles `json:"levels,omitempty"`
}

// DeliveryPreference is a recipient's stored channel preference. Absence of a
// record means all channels are permitted.
type DeliveryPreference struct {
	RecipientID   string
	RecipientKind RecipientKind
	Toggles       ChannelToggles
	Categories    map[Category]CategoryOverride
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
