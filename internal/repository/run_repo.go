package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type RunRepository interface {
	Create(ctx context.Context, run *domain.EscalationRun) error
	Finish(ctx context.Context, run *domain.EscalationRun, finishedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.EscalationRun, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) Create(ctx context.Context, run *domain.EscalationRun) error {
	model := runModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if run != nil {
		*run = *runModelToDomain(model)
	}
	return nil
}

func (r *GormRunRepo) Finish(ctx context.Context, run *domain.EscalationRun, finishedAt time.Time) error {
	if run == nil {
		return domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&EscalationRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"scanned":     run.Scanned,
			"fired":       run.Fired,
			"skipped":     run.Skipped,
			"failed":      run.Failed,
			"finished_at": finishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRunRepo) GetByID(ctx context.Context, id string) (*domain.EscalationRun, error) {
	var model EscalationRunModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return runModelToDomain(&model), nil
}
