package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// candidateStatuses are lifecycle states still eligible for escalation.
var candidateStatuses = []domain.ItemStatus{
	domain.ItemStatusUnread,
	domain.ItemStatusActive,
	domain.ItemStatusLate,
}

type ItemRepository interface {
	// Insert writes a new item. A reminder that duplicates an existing
	// (origin item, threshold, recipient) triple returns ErrConflict so a
	// redelivery after a partial failure can treat it as already written.
	Insert(ctx context.Context, item *domain.TrackableItem) error
	GetByID(ctx context.Context, id string) (*domain.TrackableItem, error)
	ListUnresolvedCandidates(ctx context.Context, limit int) ([]domain.TrackableItem, error)
	// ApplyEscalation writes the new engine state guarded on the previous
	// escalation level. It reports false when another instance advanced the
	// item first. markLate moves the lifecycle status to LATE; the one-shot
	// starting-now flag update leaves the status untouched.
	ApplyEscalation(ctx context.Context, id string, fromLevel int, state domain.EngineState, markLate bool, now time.Time) (bool, error)
	// MarkReplacedBelow marks unread reminders for the same origin item at a
	// strictly lower threshold as replaced.
	MarkReplacedBelow(ctx context.Context, originItemID string, threshold domain.Threshold) (int64, error)
}

type GormItemRepo struct {
	db *gorm.DB
}

func NewGormItemRepo(db *gorm.DB) *GormItemRepo {
	return &GormItemRepo{db: db}
}

func (r *GormItemRepo) Insert(ctx context.Context, item *domain.TrackableItem) error {
	model, err := itemModelFromDomain(item)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	if item != nil {
		restored, err := itemModelToDomain(model)
		if err != nil {
			return err
		}
		*item = *restored
	}
	return nil
}

func (r *GormItemRepo) GetByID(ctx context.Context, id string) (*domain.TrackableItem, error) {
	var model TrackableItemModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return itemModelToDomain(&model)
}

func (r *GormItemRepo) ListUnresolvedCandidates(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
	if limit < 1 {
		limit = 1
	}

	var models []TrackableItemModel
	err := r.db.WithContext(ctx).
		Where("resolved = FALSE AND status IN ?", candidateStatuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.TrackableItem, 0, len(models))
	for i := range models {
		item, err := itemModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, nil
}

func (r *GormItemRepo) ApplyEscalation(ctx context.Context, id string, fromLevel int, state domain.EngineState, markLate bool, now time.Time) (bool, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to marshal engine state: %w", err)
	}

	updates := map[string]any{
		"state":      encoded,
		"updated_at": now,
	}
	if markLate {
		updates["status"] = domain.ItemStatusLate
	}

	result := r.db.WithContext(ctx).
		Model(&TrackableItemModel{}).
		Where("id = ? AND resolved = FALSE AND COALESCE((state->>'escalation_level')::int, 0) = ?", id, fromLevel).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *GormItemRepo) MarkReplacedBelow(ctx context.Context, originItemID string, threshold domain.Threshold) (int64, error) {
	lower := domain.LowerThresholds(threshold)
	if len(lower) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(lower))
	for _, t := range lower {
		names = append(names, t.String())
	}

	result := r.db.WithContext(ctx).
		Model(&TrackableItemModel{}).
		Where("payload->>'origin_item_id' = ? AND payload->>'threshold' IN ? AND status = ?",
			originItemID, names, domain.ItemStatusUnread).
		Update("status", domain.ItemStatusReplaced)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
