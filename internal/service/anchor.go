package service

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"go.uber.org/zap"
)

// AnchorStrategy identifies how an item's reference instant is resolved.
type AnchorStrategy string

const (
	AnchorCreation  AnchorStrategy = "creation"
	AnchorDue       AnchorStrategy = "due"
	AnchorScheduled AnchorStrategy = "scheduled"
)

const (
	// StartingWindow is the half-width around a scheduled anchor inside
	// which the one-shot "starting now" signal fires.
	StartingWindow = 5 * time.Minute

	// DefaultSLAHours is the rolling window width for due-anchored items
	// whose payload carries no sla_hours.
	DefaultSLAHours = 24

	payloadScheduledDate = "scheduled_date"
	payloadScheduledTime = "scheduled_time"
	payloadTimezone      = "timezone"

	scheduledLayout = "2006-01-02 15:04"
)

// Anchor is the instant elapsed time is measured against.
type Anchor struct {
	At       time.Time
	Strategy AnchorStrategy
}

// AnchorResolver picks the anchor strategy for an item. Items with missing
// or unparseable fields are excluded rather than failed.
type AnchorResolver struct {
	defaultTimezone string
	logger          *zap.Logger
}

func NewAnchorResolver(defaultTimezone string, logger *zap.Logger) *AnchorResolver {
	if defaultTimezone == "" {
		defaultTimezone = "Europe/Paris"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnchorResolver{
		defaultTimezone: defaultTimezone,
		logger:          logger,
	}
}

// Resolve returns the item's anchor. ok is false when the item cannot be a
// candidate this tick (missing due date, malformed schedule fields).
func (r *AnchorResolver) Resolve(item *domain.TrackableItem) (Anchor, bool) {
	if item == nil {
		return Anchor{}, false
	}

	if item.Category == domain.CategoryAppointmentScheduled {
		at, err := r.scheduledAnchor(item)
		if err != nil {
			r.logger.Debug("scheduled anchor unresolvable, skipping item",
				zap.String("itemId", item.ID),
				zap.Error(err),
			)
			return Anchor{}, false
		}
		return Anchor{At: at, Strategy: AnchorScheduled}, true
	}

	if item.State.DueAt != nil {
		return Anchor{At: *item.State.DueAt, Strategy: AnchorDue}, true
	}

	if item.CreatedAt.IsZero() {
		return Anchor{}, false
	}
	return Anchor{At: item.CreatedAt, Strategy: AnchorCreation}, true
}

// scheduledAnchor interprets the stored local date and time in the item's
// named timezone. The offset comes from the zone rules for that date, not
// for today, so anchors across DST transitions resolve correctly.
func (r *AnchorResolver) scheduledAnchor(item *domain.TrackableItem) (time.Time, error) {
	date, ok := item.PayloadString(payloadScheduledDate)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s", payloadScheduledDate)
	}
	clock, ok := item.PayloadString(payloadScheduledTime)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s", payloadScheduledTime)
	}

	tz, ok := item.PayloadString(payloadTimezone)
	if !ok {
		tz = r.defaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	parsed, err := time.ParseInLocation(scheduledLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable schedule %q %q: %w", date, clock, err)
	}

	return parsed, nil
}

// OffsetFor returns the UTC offset the named timezone applies to the given
// local date and time, derived from the zone rules for that date.
func OffsetFor(timezoneName string, localDateTime time.Time) (time.Duration, error) {
	loc, err := time.LoadLocation(timezoneName)
	if err != nil {
		return 0, fmt.Errorf("unknown timezone %q: %w", timezoneName, err)
	}

	localized := time.Date(
		localDateTime.Year(), localDateTime.Month(), localDateTime.Day(),
		localDateTime.Hour(), localDateTime.Minute(), localDateTime.Second(),
		localDateTime.Nanosecond(), loc,
	)
	_, offsetSeconds := localized.Zone()

	return time.Duration(offsetSeconds) * time.Second, nil
}

// StartingNow reports whether the anchor falls inside the starting window
// and the one-shot flag has not fired yet.
func StartingNow(item *domain.TrackableItem, anchor Anchor, now time.Time) bool {
	if item == nil || item.State.StartingNotified {
		return false
	}

	diff := now.Sub(anchor.At)
	if diff < 0 {
		diff = -diff
	}
	return diff <= StartingWindow
}

// SLAHours reads the rolling window width for a due-anchored item.
func SLAHours(item *domain.TrackableItem) int {
	hours, ok := item.PayloadFloat(domain.PayloadSLAHours)
	if !ok || hours <= 0 {
		return DefaultSLAHours
	}
	return int(hours)
}
