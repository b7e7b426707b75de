package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type PreferenceRepository interface {
	// Get returns domain.ErrNotFound when the recipient has no stored
	// preference; the gate treats that as allow-all.
	Get(ctx context.Context, recipientID string, kind domain.RecipientKind) (*domain.DeliveryPreference, error)
	Upsert(ctx context.Context, pref *domain.DeliveryPreference) error
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) Get(ctx context.Context, recipientID string, kind domain.RecipientKind) (*domain.DeliveryPreference, error) {
	var model DeliveryPreferenceModel
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND recipient_kind = ?", recipientID, kind).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preferenceModelToDomain(&model)
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, pref *domain.DeliveryPreference) error {
	model, err := preferenceModelFromDomain(pref)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}
