package service

import (
	"context"

	"go.uber.org/zap"
)

// Trigger re-issues domain notifications through the business layer. Handlers
// pass only validated, typed fields; rendering and transport stay outside the
// engine.
type Trigger interface {
	RequestSignature(ctx context.Context, recipientID, documentID string) error
	RequestPayment(ctx context.Context, recipientID string, amount float64) error
	RemindAssignment(ctx context.Context, expertID, assignmentID string) error
}

// LogTrigger records trigger calls without re-issuing anything. Deployments
// without the business layer wire this in.
type LogTrigger struct {
	logger *zap.Logger
}

func NewLogTrigger(logger *zap.Logger) *LogTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTrigger{logger: logger}
}

func (t *LogTrigger) RequestSignature(ctx context.Context, recipientID, documentID string) error {
	t.logger.Info("signature request re-issued",
		zap.String("recipientId", recipientID),
		zap.String("documentId", documentID),
	)
	return nil
}

func (t *LogTrigger) RequestPayment(ctx context.Context, recipientID string, amount float64) error {
	t.logger.Info("payment follow-up requested",
		zap.String("recipientId", recipientID),
		zap.Float64("amount", amount),
	)
	return nil
}

func (t *LogTrigger) RemindAssignment(ctx context.Context, expertID, assignmentID string) error {
	t.logger.Info("assignment reminder re-issued",
		zap.String("expertId", expertID),
		zap.String("assignmentId", assignmentID),
	)
	return nil
}
