package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

// nonClaimableStatuses are states a worker must not claim: terminal rows and
// rows another worker is already sending.
var nonClaimableStatuses = []domain.DeliveryStatus{
	domain.DeliveryStatusSent,
	domain.DeliveryStatusFailed,
	domain.DeliveryStatusSending,
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.OutboundDelivery) error
	GetByID(ctx context.Context, id string) (*domain.OutboundDelivery, error)
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
	UpdateStatusWithRetry(ctx context.Context, id string, status domain.DeliveryStatus, nextRetryAt time.Time) error
	LockForSending(ctx context.Context, id string) (*domain.OutboundDelivery, error)
	GetDueForRetry(ctx context.Context, limit int) ([]domain.OutboundDelivery, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	SetProviderMessageID(ctx context.Context, id string, providerMsgID string) error
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.OutboundDelivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.OutboundDelivery, error) {
	var model OutboundDeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	result := r.db.WithContext(ctx).
		Model(&OutboundDeliveryModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) UpdateStatusWithRetry(ctx context.Context, id string, status domain.DeliveryStatus, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&OutboundDeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LockForSending claims the row with a single conditional update: exactly one
// worker flips QUEUED to SENDING, duplicates see zero rows affected.
func (r *GormDeliveryRepo) LockForSending(ctx context.Context, id string) (*domain.OutboundDelivery, error) {
	claim := r.db.WithContext(ctx).
		Model(&OutboundDeliveryModel{}).
		Where("id = ? AND status NOT IN ?", id, nonClaimableStatuses).
		Update("status", domain.DeliveryStatusSending)
	if claim.Error != nil {
		return nil, claim.Error
	}

	if claim.RowsAffected == 0 {
		var model OutboundDeliveryModel
		err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		// Terminal, or another worker already claimed it.
		return nil, nil
	}

	var model OutboundDeliveryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}

	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.OutboundDelivery, error) {
	var models []OutboundDeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.DeliveryStatusQueued, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.OutboundDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}

func (r *GormDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&OutboundDeliveryModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormDeliveryRepo) SetProviderMessageID(ctx context.Context, id string, providerMsgID string) error {
	return r.db.WithContext(ctx).
		Model(&OutboundDeliveryModel{}).
		Where("id = ?", id).
		Update("provider_message_id", providerMsgID).Error
}
