package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_trackable_items",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.TrackableItemModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_items_candidates ON trackable_items (created_at) WHERE resolved = FALSE AND status IN ('UNREAD', 'ACTIVE', 'LATE')`,
					`CREATE INDEX IF NOT EXISTS idx_items_recipient ON trackable_items (recipient_id, recipient_kind)`,
					`CREATE INDEX IF NOT EXISTS idx_items_category ON trackable_items (category)`,
					// One reminder per (origin item, threshold, addressee) is
					// the idempotency invariant; enforce it at the store.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_origin_threshold ON trackable_items ((payload->>'origin_item_id'), (payload->>'threshold'), recipient_id) WHERE payload->>'origin_item_id' IS NOT NULL AND payload->>'threshold' IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.TrackableItemModel{})
			},
		},
		{
			ID: "000002_create_delivery_preferences",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.DeliveryPreferenceModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryPreferenceModel{})
			},
		},
		{
			ID: "000003_create_outbound_deliveries",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.OutboundDeliveryModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_deliveries_reminder_id ON outbound_deliveries (reminder_id)`,
					`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON outbound_deliveries (next_retry_at) WHERE status = 'QUEUED'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.OutboundDeliveryModel{})
			},
		},
		{
			ID: "000004_create_delivery_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_delivery_id ON delivery_attempts (delivery_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
			},
		},
		{
			ID: "000005_create_escalation_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.EscalationRunModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.EscalationRunModel{})
			},
		},
	})

	return m.Migrate()
}
