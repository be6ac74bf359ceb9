package billing

import (
	"time"

	"github.com/forklinehq/forkline/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciliation engine.
type Repository interface {
	FindByExternalSubscriptionID(externalSubscriptionID string) (*models.Subscription, error)
	FindPendingByCustomerID(externalCustomerID string) (*models.Subscription, error)
	FindLatestByCustomerID(externalCustomerID string) (*models.Subscription, error)
	GetSubscriptionByUUID(uuid string) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	// UpdateSubscription applies a mutation under a row lock so two
	// concurrent reconciliations of the same subscription serialize.
	// It reports whether anything actually changed.
	UpdateSubscription(id uint, apply func(*models.Subscription)) (*models.Subscription, bool, error)
	GetUserByID(id uint) (*models.User, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByExternalSubscriptionID(externalSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("external_subscription_id = ? AND external_subscription_id <> ''", externalSubscriptionID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindPendingByCustomerID(externalCustomerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("external_customer_id = ? AND status = ?", externalCustomerID, models.SubscriptionStatusPending).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindLatestByCustomerID(externalCustomerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("external_customer_id = ?", externalCustomerID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByUUID(uuid string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("uuid = ?", uuid).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) UpdateSubscription(id uint, apply func(*models.Subscription)) (*models.Subscription, bool, error) {
	var out *models.Subscription
	written := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, id).Error; err != nil {
			return err
		}

		before := sub
		apply(&sub)
		if subscriptionsEqual(&before, &sub) {
			out = &sub
			return nil
		}
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		written = true
		out = &sub
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, written, nil
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// subscriptionsEqual compares the reconciled fields so an identical
// target state skips the write entirely (idempotent replay).
func subscriptionsEqual(a, b *models.Subscription) bool {
	return a.OwnerID == b.OwnerID &&
		a.ExternalSubscriptionID == b.ExternalSubscriptionID &&
		a.ExternalCustomerID == b.ExternalCustomerID &&
		a.Status == b.Status &&
		a.Plan == b.Plan &&
		timePtrEqual(a.CurrentPeriodStart, b.CurrentPeriodStart) &&
		timePtrEqual(a.CurrentPeriodEnd, b.CurrentPeriodEnd) &&
		timePtrEqual(a.TrialEndsAt, b.TrialEndsAt) &&
		timePtrEqual(a.CanceledAt, b.CanceledAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
