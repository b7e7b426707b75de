package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDeliveryMaxRetries = 5

	// publishRetryDelay reschedules a delivery whose broker publish failed;
	// the retry scanner picks it up.
	publishRetryDelay = 30 * time.Second

	// startingNowLabel is the payload threshold label for the one-shot
	// "starting now" signal, which is not an escalation threshold.
	startingNowLabel = "starting_now"
)

// outboundChannels are gate-checked independently of the in-app record.
var outboundChannels = []domain.Channel{domain.ChannelEmail, domain.ChannelPush}

// DeliveryEmitter writes reminder records and schedules per-channel outbound
// sends for fired candidates.
type DeliveryEmitter struct {
	items      repository.ItemRepository
	deliveries repository.DeliveryRepository
	gate       *PreferenceGate
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newID      func() string
}

func NewDeliveryEmitter(
	items repository.ItemRepository,
	deliveries repository.DeliveryRepository,
	gate *PreferenceGate,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DeliveryEmitter, error) {
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("preference gate is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryEmitter{
		items:      items,
		deliveries: deliveries,
		gate:       gate,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (e *DeliveryEmitter) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Emit writes the reminder record(s) and schedules outbound sends for one
// fired candidate. An error here means the engine state is not advanced and
// the threshold retries next tick.
func (e *DeliveryEmitter) Emit(ctx context.Context, cand Candidate, content *domain.ReminderContent) error {
	if err := content.Validate(); err != nil {
		return err
	}

	now := e.now()

	for _, audience := range content.Audiences {
		var reminderID string

		if e.gate.MayDeliver(ctx, audience.RecipientID, audience.RecipientKind, cand.Item.Category, domain.ChannelInApp, cand.Threshold) {
			reminder := e.buildReminder(cand, content, audience, now)
			switch err := e.items.Insert(ctx, &reminder); {
			case errors.Is(err, domain.ErrConflict):
				// A prior attempt already wrote this reminder before the
				// state update failed; continue so the redelivery can
				// finish and advance state.
				e.logger.Info("reminder already recorded by a prior attempt",
					zap.String("itemId", cand.Item.ID),
					zap.String("recipientId", audience.RecipientID),
				)
			case err != nil:
				return fmt.Errorf("failed to insert reminder record: %w", err)
			default:
				reminderID = reminder.ID
				e.metrics.IncReminderEmitted(cand.Item.Category.String())
			}
		} else {
			e.logger.Debug("in-app delivery suppressed by preference",
				zap.String("recipientId", audience.RecipientID),
				zap.String("itemId", cand.Item.ID),
			)
		}

		for _, channel := range outboundChannels {
			if !e.gate.MayDeliver(ctx, audience.RecipientID, audience.RecipientKind, cand.Item.Category, channel, cand.Threshold) {
				continue
			}

			recipient := audience.RecipientID
			if channel == domain.ChannelEmail {
				if audience.Email == "" {
					e.logger.Debug("email delivery skipped: no address on audience",
						zap.String("recipientId", audience.RecipientID),
						zap.String("itemId", cand.Item.ID),
					)
					continue
				}
				recipient = audience.Email
			}

			// Sends that render a suppressed in-app record reference the
			// origin item instead.
			renderedID := reminderID
			if renderedID == "" {
				renderedID = cand.Item.ID
			}

			if err := e.scheduleDelivery(ctx, cand, content, channel, recipient, renderedID, now); err != nil {
				return err
			}
		}
	}

	if content.Supersede && cand.Threshold != domain.ThresholdOverdue && !cand.StartingNow {
		replaced, err := e.items.MarkReplacedBelow(ctx, cand.Item.ID, cand.Threshold)
		if err != nil {
			// History stays duplicated but delivery already happened; do not
			// fail the candidate over the cascade.
			e.logger.Warn("failed to mark superseded reminders as replaced",
				zap.String("itemId", cand.Item.ID),
				zap.Error(err),
			)
		} else if replaced > 0 {
			e.logger.Info("superseded prior unread reminders",
				zap.String("itemId", cand.Item.ID),
				zap.Int64("replaced", replaced),
			)
		}
	}

	return nil
}

func (e *DeliveryEmitter) buildReminder(cand Candidate, content *domain.ReminderContent, audience domain.Audience, now time.Time) domain.TrackableItem {
	payload := map[string]any{
		domain.PayloadOriginItemID: cand.Item.ID,
		domain.PayloadThreshold:    e.thresholdLabel(cand),
		domain.PayloadHoursElapsed: cand.HoursElapsed,
		domain.PayloadActionURL:    content.ActionURL,
	}
	if name, ok := cand.Item.PayloadString(domain.PayloadName); ok {
		payload[domain.PayloadName] = name
	}
	if email, ok := cand.Item.PayloadString(domain.PayloadEmail); ok {
		payload[domain.PayloadEmail] = email
	}
	if phone, ok := cand.Item.PayloadString(domain.PayloadPhone); ok {
		payload[domain.PayloadPhone] = phone
	}

	return domain.TrackableItem{
		ID:            e.newID(),
		RecipientID:   audience.RecipientID,
		RecipientKind: audience.RecipientKind,
		Category:      cand.Item.Category,
		Status:        domain.ItemStatusUnread,
		// Reminder records are engine-inert: only their origin item
		// escalates. The recipient still sees them as unread.
		Resolved:  true,
		Priority:  content.Priority,
		Title:     content.Subject,
		Body:      content.Body,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *DeliveryEmitter) thresholdLabel(cand Candidate) string {
	if cand.StartingNow {
		return startingNowLabel
	}
	return cand.Threshold.String()
}

func (e *DeliveryEmitter) scheduleDelivery(
	ctx context.Context,
	cand Candidate,
	content *domain.ReminderContent,
	channel domain.Channel,
	recipient string,
	reminderID string,
	now time.Time,
) error {
	delivery := domain.OutboundDelivery{
		ID:         e.newID(),
		ReminderID: reminderID,
		Channel:    channel,
		Recipient:  recipient,
		Subject:    content.Subject,
		Body:       content.Body,
		Priority:   content.Priority,
		Status:     domain.DeliveryStatusQueued,
		MaxRetries: defaultDeliveryMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.deliveries.Create(ctx, &delivery); err != nil {
		return fmt.Errorf("failed to create outbound delivery: %w", err)
	}

	msg := queue.DeliveryMessage{
		DeliveryID: delivery.ID,
		ReminderID: reminderID,
		Channel:    channel,
		Priority:   delivery.Priority,
	}

	queueName := queue.QueueName(channel)
	if err := e.publisher.Publish(ctx, queueName, msg); err != nil {
		// The delivery row survives; the retry scanner re-publishes it.
		e.logger.Warn("failed to publish delivery, scheduling broker retry",
			zap.String("deliveryId", delivery.ID),
			zap.String("queue", queueName),
			zap.Error(err),
		)
		if retryErr := e.deliveries.UpdateStatusWithRetry(ctx, delivery.ID, domain.DeliveryStatusQueued, now.Add(publishRetryDelay)); retryErr != nil {
			return fmt.Errorf("failed to schedule broker retry: %w", retryErr)
		}
		return nil
	}

	e.metrics.IncDeliveryPublished(queue.QueueName(channel))
	return nil
}
