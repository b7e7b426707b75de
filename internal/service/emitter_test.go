package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
	"github.com/kursadbilgin/escalation-engine/internal/sla"
	"go.uber.org/zap"
)

func testEmitter(t *testing.T, items *fakeItemRepo, deliveries *fakeDeliveryRepo, prefs *fakePreferenceRepo, publisher *fakePublisher) *DeliveryEmitter {
	t.Helper()

	emitter, err := NewDeliveryEmitter(
		items,
		deliveries,
		NewPreferenceGate(prefs, zap.NewNop()),
		publisher,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewDeliveryEmitter() error = %v", err)
	}
	emitter.now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }

	ids := 0
	emitter.newID = func() string {
		ids++
		return string(rune('a'+ids-1)) + "-id"
	}
	return emitter
}

func testCandidate() Candidate {
	return Candidate{
		Item: domain.TrackableItem{
			ID:            "origin-1",
			RecipientID:   "user-1",
			RecipientKind: domain.RecipientStaff,
			Category:      domain.CategoryContactMessage,
			Status:        domain.ItemStatusUnread,
			Priority:      domain.PriorityHigh,
			Payload: map[string]any{
				domain.PayloadName:  "Jean Martin",
				domain.PayloadEmail: "jean@example.com",
			},
		},
		Threshold:    domain.ThresholdAcceptable,
		Policy:       sla.PolicyEntry{TargetHours: 24, AcceptableHours: 48, CriticalHours: 120, DefaultPriority: domain.PriorityHigh},
		HoursElapsed: 49,
	}
}

func testContent() *domain.ReminderContent {
	return &domain.ReminderContent{
		Subject:   "Second reminder: contact from Jean Martin awaiting reply",
		Body:      "The contact request from Jean Martin has been waiting for a reply for 49 hours.",
		ActionURL: "https://app.example.com/admin/contact/origin-1",
		Priority:  domain.PriorityHigh,
		Audiences: []domain.Audience{
			{RecipientID: "user-1", RecipientKind: domain.RecipientStaff, Email: "jean@example.com"},
		},
	}
}

func TestEmit_DuplicateReminderTreatedAsWritten(t *testing.T) {
	t.Parallel()

	// A redelivery after a partial failure hits the unique reminder index;
	// Emit must carry on so the state update can finally land.
	items := &fakeItemRepo{
		insertFn: func(ctx context.Context, item *domain.TrackableItem) error {
			return domain.ErrConflict
		},
	}
	var created []domain.OutboundDelivery
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.OutboundDelivery) error {
			created = append(created, *d)
			return nil
		},
	}

	emitter := testEmitter(t, items, deliveries, &fakePreferenceRepo{}, &fakePublisher{})

	if err := emitter.Emit(context.Background(), testCandidate(), testContent()); err != nil {
		t.Fatalf("Emit() error = %v, want nil on duplicate reminder", err)
	}

	if len(created) != 2 {
		t.Fatalf("deliveries created = %d, want 2", len(created))
	}
	// Without a fresh reminder row the sends reference the origin item.
	for _, d := range created {
		if d.ReminderID != "origin-1" {
			t.Fatalf("reminder id = %q, want origin-1 back-reference", d.ReminderID)
		}
	}
}

func TestEmit_WritesReminderWithBackReference(t *testing.T) {
	t.Parallel()

	var inserted []domain.TrackableItem
	items := &fakeItemRepo{
		insertFn: func(ctx context.Context, item *domain.TrackableItem) error {
			inserted = append(inserted, *item)
			return nil
		},
	}
	var created []domain.OutboundDelivery
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.OutboundDelivery) error {
			created = append(created, *d)
			return nil
		},
	}
	var published []queue.DeliveryMessage
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			published = append(published, msg)
			return nil
		},
	}

	emitter := testEmitter(t, items, deliveries, &fakePreferenceRepo{}, publisher)

	if err := emitter.Emit(context.Background(), testCandidate(), testContent()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if len(inserted) != 1 {
		t.Fatalf("reminders inserted = %d, want 1", len(inserted))
	}
	reminder := inserted[0]
	if !reminder.Resolved {
		t.Fatal("reminder record must be resolved so it never escalates itself")
	}
	if reminder.Status != domain.ItemStatusUnread {
		t.Fatalf("reminder status = %q, want UNREAD", reminder.Status)
	}
	if got := reminder.Payload[domain.PayloadOriginItemID]; got != "origin-1" {
		t.Fatalf("origin_item_id = %v, want origin-1", got)
	}
	if got := reminder.Payload[domain.PayloadThreshold]; got != "acceptable" {
		t.Fatalf("threshold = %v, want acceptable", got)
	}

	if len(created) != 2 {
		t.Fatalf("deliveries created = %d, want 2 (email + push)", len(created))
	}
	for _, d := range created {
		if d.ReminderID != reminder.ID {
			t.Fatalf("delivery reminder id = %q, want %q", d.ReminderID, reminder.ID)
		}
		if d.Channel == domain.ChannelEmail && d.Recipient != "jean@example.com" {
			t.Fatalf("email recipient = %q, want jean@example.com", d.Recipient)
		}
	}
	if len(published) != 2 {
		t.Fatalf("messages published = %d, want 2", len(published))
	}
}

func TestEmit_GateDenyIsIndependentPerChannel(t *testing.T) {
	t.Parallel()

	var inserted int
	items := &fakeItemRepo{
		insertFn: func(ctx context.Context, item *domain.TrackableItem) error {
			inserted++
			return nil
		},
	}
	var created []domain.OutboundDelivery
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.OutboundDelivery) error {
			created = append(created, *d)
			return nil
		},
	}
	prefs := &fakePreferenceRepo{
		getFn: func(ctx context.Context, recipientID string, kind domain.RecipientKind) (*domain.DeliveryPreference, error) {
			return &domain.DeliveryPreference{
				RecipientID:   recipientID,
				RecipientKind: kind,
				Toggles:       domain.ChannelToggles{InApp: false, Email: true, Push: false},
			}, nil
		},
	}

	emitter := testEmitter(t, items, deliveries, prefs, &fakePublisher{})

	if err := emitter.Emit(context.Background(), testCandidate(), testContent()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if inserted != 0 {
		t.Fatalf("reminders inserted = %d, want 0 (in-app suppressed)", inserted)
	}
	if len(created) != 1 {
		t.Fatalf("deliveries created = %d, want 1 (email only)", len(created))
	}
	if created[0].Channel != domain.ChannelEmail {
		t.Fatalf("delivery channel = %q, want EMAIL", created[0].Channel)
	}
	// With the in-app record suppressed the send references the origin item.
	if created[0].ReminderID != "origin-1" {
		t.Fatalf("delivery reminder id = %q, want origin-1", created[0].ReminderID)
	}
}

func TestEmit_SupersedeMarksLowerUnreadReplaced(t *testing.T) {
	t.Parallel()

	var markedOrigin string
	var markedThreshold domain.Threshold
	items := &fakeItemRepo{
		markReplacedFn: func(ctx context.Context, originItemID string, threshold domain.Threshold) (int64, error) {
			markedOrigin = originItemID
			markedThreshold = threshold
			return 1, nil
		},
	}

	emitter := testEmitter(t, items, &fakeDeliveryRepo{}, &fakePreferenceRepo{}, &fakePublisher{})

	content := testContent()
	content.Supersede = true
	if err := emitter.Emit(context.Background(), testCandidate(), content); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if markedOrigin != "origin-1" {
		t.Fatalf("supersede origin = %q, want origin-1", markedOrigin)
	}
	if markedThreshold != domain.ThresholdAcceptable {
		t.Fatalf("supersede threshold = %q, want acceptable", markedThreshold)
	}
}

func TestEmit_PublishFailureSchedulesBrokerRetry(t *testing.T) {
	t.Parallel()

	var retried []string
	deliveries := &fakeDeliveryRepo{
		updateRetryFn: func(ctx context.Context, id string, status domain.DeliveryStatus, nextRetryAt time.Time) error {
			if status != domain.DeliveryStatusQueued {
				t.Errorf("retry status = %q, want QUEUED", status)
			}
			retried = append(retried, id)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			return errors.New("broker unavailable")
		},
	}

	emitter := testEmitter(t, &fakeItemRepo{}, deliveries, &fakePreferenceRepo{}, publisher)

	if err := emitter.Emit(context.Background(), testCandidate(), testContent()); err != nil {
		t.Fatalf("Emit() error = %v, want nil (retry absorbs publish failure)", err)
	}
	if len(retried) != 2 {
		t.Fatalf("broker retries scheduled = %d, want 2", len(retried))
	}
}

func TestEmit_EmailSkippedWithoutAddress(t *testing.T) {
	t.Parallel()

	var created []domain.OutboundDelivery
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.OutboundDelivery) error {
			created = append(created, *d)
			return nil
		},
	}

	emitter := testEmitter(t, &fakeItemRepo{}, deliveries, &fakePreferenceRepo{}, &fakePublisher{})

	content := testContent()
	content.Audiences = []domain.Audience{
		{RecipientID: "supervisor-1", RecipientKind: domain.RecipientStaff},
	}
	if err := emitter.Emit(context.Background(), testCandidate(), content); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if len(created) != 1 {
		t.Fatalf("deliveries created = %d, want 1 (push only)", len(created))
	}
	if created[0].Channel != domain.ChannelPush {
		t.Fatalf("delivery channel = %q, want PUSH", created[0].Channel)
	}
}

func TestEmit_InvalidContentRejected(t *testing.T) {
	t.Parallel()

	emitter := testEmitter(t, &fakeItemRepo{}, &fakeDeliveryRepo{}, &fakePreferenceRepo{}, &fakePublisher{})

	if err := emitter.Emit(context.Background(), testCandidate(), &domain.ReminderContent{}); err == nil {
		t.Fatal("Emit() error = nil for empty content, want validation error")
	}
}
