package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
)

type fakeItemRepo struct {
	insertFn       func(ctx context.Context, item *domain.TrackableItem) error
	getByIDFn      func(ctx context.Context, id string) (*domain.TrackableItem, error)
	listFn         func(ctx context.Context, limit int) ([]domain.TrackableItem, error)
	applyFn        func(ctx context.Context, id string, fromLevel int, state domain.EngineState, markLate bool, now time.Time) (bool, error)
	markReplacedFn func(ctx context.Context, originItemID string, threshold domain.Threshold) (int64, error)
}

func (f *fakeItemRepo) Insert(ctx context.Context, item *domain.TrackableItem) error {
	if f.insertFn != nil {
		return f.insertFn(ctx, item)
	}
	return nil
}

func (f *fakeItemRepo) GetByID(ctx context.Context, id string) (*domain.TrackableItem, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeItemRepo) ListUnresolvedCandidates(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeItemRepo) ApplyEscalation(ctx context.Context, id string, fromLevel int, state domain.EngineState, markLate bool, now time.Time) (bool, error) {
	if f.applyFn != nil {
		return f.applyFn(ctx, id, fromLevel, state, markLate, now)
	}
	return true, nil
}

func (f *fakeItemRepo) MarkReplacedBelow(ctx context.Context, originItemID string, threshold domain.Threshold) (int64, error) {
	if f.markReplacedFn != nil {
		return f.markReplacedFn(ctx, originItemID, threshold)
	}
	return 0, nil
}

type fakeDeliveryRepo struct {
	createFn          func(ctx context.Context, d *domain.OutboundDelivery) error
	getByIDFn         func(ctx context.Context, id string) (*domain.OutboundDelivery, error)
	updateStatusFn    func(ctx context.Context, id string, status domain.DeliveryStatus) error
	updateRetryFn     func(ctx context.Context, id string, status domain.DeliveryStatus, nextRetryAt time.Time) error
	lockFn            func(ctx context.Context, id string) (*domain.OutboundDelivery, error)
	dueForRetryFn     func(ctx context.Context, limit int) ([]domain.OutboundDelivery, error)
	clearRetryFn      func(ctx context.Context, id string) error
	setProviderMsgIDF func(ctx context.Context, id string, providerMsgID string) error
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.OutboundDelivery) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.OutboundDelivery, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeDeliveryRepo) UpdateStatusWithRetry(ctx context.Context, id string, status domain.DeliveryStatus, nextRetryAt time.Time) error {
	if f.updateRetryFn != nil {
		return f.updateRetryFn(ctx, id, status, nextRetryAt)
	}
	return nil
}

func (f *fakeDeliveryRepo) LockForSending(ctx context.Context, id string) (*domain.OutboundDelivery, error) {
	if f.lockFn != nil {
		return f.lockFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.OutboundDelivery, error) {
	if f.dueForRetryFn != nil {
		return f.dueForRetryFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearRetryFn != nil {
		return f.clearRetryFn(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) SetProviderMessageID(ctx context.Context, id string, providerMsgID string) error {
	if f.setProviderMsgIDF != nil {
		return f.setProviderMsgIDF(ctx, id, providerMsgID)
	}
	return nil
}

type fakeAttemptRepo struct {
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

type fakePreferenceRepo struct {
	getFn func(ctx context.Context, recipientID string, kind domain.RecipientKind) (*domain.DeliveryPreference, error)
}

func (f *fakePreferenceRepo) Get(ctx context.Context, recipientID string, kind domain.RecipientKind) (*domain.DeliveryPreference, error) {
	if f.getFn != nil {
		return f.getFn(ctx, recipientID, kind)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePreferenceRepo) Upsert(ctx context.Context, pref *domain.DeliveryPreference) error {
	return nil
}

type fakeRunRepo struct {
	createFn func(ctx context.Context, run *domain.EscalationRun) error
	finishFn func(ctx context.Context, run *domain.EscalationRun, finishedAt time.Time) error
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.EscalationRun) error {
	if f.createFn != nil {
		return f.createFn(ctx, run)
	}
	return nil
}

func (f *fakeRunRepo) Finish(ctx context.Context, run *domain.EscalationRun, finishedAt time.Time) error {
	if f.finishFn != nil {
		return f.finishFn(ctx, run, finishedAt)
	}
	return nil
}

func (f *fakeRunRepo) GetByID(ctx context.Context, id string) (*domain.EscalationRun, error) {
	return nil, domain.ErrNotFound
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeNotifier struct {
	sendFn func(ctx context.Context, delivery domain.OutboundDelivery) (*provider.NotifierResponse, error)
}

func (f *fakeNotifier) Send(ctx context.Context, delivery domain.OutboundDelivery) (*provider.NotifierResponse, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, delivery)
	}
	return &provider.NotifierResponse{StatusCode: 200}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeTrigger struct {
	signatureFn  func(ctx context.Context, recipientID, documentID string) error
	paymentFn    func(ctx context.Context, recipientID string, amount float64) error
	assignmentFn func(ctx context.Context, expertID, assignmentID string) error
}

func (f *fakeTrigger) RequestSignature(ctx context.Context, recipientID, documentID string) error {
	if f.signatureFn != nil {
		return f.signatureFn(ctx, recipientID, documentID)
	}
	return nil
}

func (f *fakeTrigger) RequestPayment(ctx context.Context, recipientID string, amount float64) error {
	if f.paymentFn != nil {
		return f.paymentFn(ctx, recipientID, amount)
	}
	return nil
}

func (f *fakeTrigger) RemindAssignment(ctx context.Context, expertID, assignmentID string) error {
	if f.assignmentFn != nil {
		return f.assignmentFn(ctx, expertID, assignmentID)
	}
	return nil
}
