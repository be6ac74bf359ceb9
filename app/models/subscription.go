package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription is the local reconciliation target for provider billing
// events. It is created as "pending" by the claim flow before any
// provider event exists; ExternalSubscriptionID stays empty until the
// first provider confirmation links the record.
//
// Entitlements are intentionally not a column here. They are always a
// pure function of Plan (entitlements.ForPlan) so they can never drift.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UUID                   string     `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	OwnerID                uint       `gorm:"not null;index" json:"owner_id"`
	ExternalSubscriptionID string     `gorm:"type:varchar(191);default:'';index:idx_subscriptions_external_sub" json:"external_subscription_id"`
	ExternalCustomerID     string     `gorm:"type:varchar(191);not null;index:idx_subscriptions_external_customer" json:"external_customer_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	Plan                   string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialEndsAt            *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}

// IsPending reports whether the subscription still awaits verification.
// Pending is sticky: provider events never clear it, only the explicit
// verification transition does.
func (s *Subscription) IsPending() bool {
	return s.Status == SubscriptionStatusPending
}

// IsLinked reports whether a provider subscription has been attached.
func (s *Subscription) IsLinked() bool {
	return s.ExternalSubscriptionID != ""
}
