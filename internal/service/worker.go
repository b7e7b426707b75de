package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
	"github.com/kursadbilgin/escalation-engine/internal/ratelimit"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
)

// DeliveryWorker drains the channel queues and hands outbound deliveries to
// the notifier, with per-channel rate limiting and retry classification.
type DeliveryWorker struct {
	deliveries  repository.DeliveryRepository
	attempts    repository.AttemptRepository
	consumer    queue.Consumer
	notifier    provider.Notifier
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewDeliveryWorker(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	notifier provider.Notifier,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*DeliveryWorker, error) {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryWorker{
		deliveries:  deliveries,
		attempts:    attempts,
		consumer:    consumer,
		notifier:    notifier,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

// Start consumes channel queues and processes delivery messages until context cancellation.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	// Every work queue keeps at least one consumer even when the configured
	// concurrency is lower than the queue count.
	workers := w.concurrency
	if workers < len(queueNames) {
		workers = len(queueNames)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("delivery worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (w *DeliveryWorker) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	delivery, err := w.deliveries.LockForSending(ctx, msg.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("delivery not found during lock, skipping",
				zap.String("deliveryId", msg.DeliveryID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock delivery for sending: %w", err)
	}

	// Nil means terminal/sending state; ack and skip. This is the worker-side
	// half of at-least-once: duplicate messages are absorbed here.
	if delivery == nil {
		return nil
	}

	channelName := strings.ToLower(delivery.Channel.String())
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(channelName)
		defer w.metrics.DecWorkerInFlight(channelName)
	}

	if err := w.rateLimiter.Wait(ctx, channelName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := delivery.AttemptCount + 1
	sendStart := w.now()
	notifierResp, sendErr := w.notifier.Send(ctx, *delivery)
	if w.metrics != nil {
		w.metrics.ObserveSendDuration(channelName, w.now().Sub(sendStart))
	}

	if err := w.recordAttempt(ctx, delivery.ID, attemptNumber, notifierResp, sendErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if sendErr == nil {
		if notifierResp != nil && strings.TrimSpace(notifierResp.MessageID) != "" {
			if err := w.deliveries.SetProviderMessageID(ctx, delivery.ID, notifierResp.MessageID); err != nil {
				return fmt.Errorf("failed to set provider message id: %w", err)
			}
		}

		if err := w.deliveries.UpdateStatus(ctx, delivery.ID, domain.DeliveryStatusSent); err != nil {
			return fmt.Errorf("failed to update delivery status to sent: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncDeliverySent(channelName)
		}
		return nil
	}

	isTransient := provider.IsTransient(sendErr)
	maxRetries := delivery.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultDeliveryMaxRetries
	}

	if isTransient && attemptNumber < maxRetries {
		nextRetryAt := w.now().Add(w.computeRetryDelay(attemptNumber))
		if err := w.deliveries.UpdateStatusWithRetry(ctx, delivery.ID, domain.DeliveryStatusQueued, nextRetryAt); err != nil {
			return fmt.Errorf("failed to update delivery for retry: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := w.deliveries.UpdateStatus(ctx, delivery.ID, domain.DeliveryStatusFailed); err != nil {
		return fmt.Errorf("failed to update delivery status to failed: %w", err)
	}
	if w.metrics != nil {
		reason := "permanent_error"
		if isTransient {
			reason = "retry_exhausted"
		}
		w.metrics.IncDeliveryFailed(channelName, reason)
	}

	return nil
}

func (w *DeliveryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

func (w *DeliveryWorker) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if w.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = w.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (w *DeliveryWorker) recordAttempt(
	ctx context.Context,
	deliveryID string,
	attemptNumber int,
	notifierResp *provider.NotifierResponse,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if notifierResp != nil {
		if notifierResp.StatusCode > 0 {
			value := notifierResp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(notifierResp.Body); body != "" {
			value := notifierResp.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var notifierErr *provider.NotifierError
		if errors.As(sendErr, &notifierErr) && notifierErr.StatusCode > 0 && statusCode == nil {
			value := notifierErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    deliveryID,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     w.now().UTC(),
	}

	return w.attempts.Create(ctx, attempt)
}
