package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ClaimStateUnclaimed = "unclaimed"
	ClaimStateClaimed   = "claimed"
)

// Restaurant is a claimable directory listing. The claim flow attaches
// it to an owner and, for paid tiers, creates the pending Subscription
// that billing webhooks later reconcile.
type Restaurant struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	OwnerID    *uint          `gorm:"index" json:"owner_id,omitempty"`
	Name       string         `gorm:"type:varchar(200);not null" json:"name"`
	Slug       string         `gorm:"type:varchar(200);uniqueIndex;not null" json:"slug"`
	City       string         `gorm:"type:varchar(100);default:''" json:"city"`
	ClaimState string         `gorm:"type:varchar(20);not null;default:'unclaimed';index" json:"claim_state"`
	ClaimedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Restaurant) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return nil
}

// IsClaimed reports whether an owner has taken over the listing.
func (r *Restaurant) IsClaimed() bool {
	return r.ClaimState == ClaimStateClaimed && r.OwnerID != nil
}
