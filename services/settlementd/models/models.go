package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Occurrence records an action performed against an asset.
type Occurrence struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID     uint64    `gorm:"uniqueIndex:idx_occurrence_asset_seq;not null"`
	Sequence    uint64    `gorm:"uniqueIndex:idx_occurrence_asset_seq;not null"`
	Actor       string    `gorm:"size:42;not null"`
	Fingerprint string    `gorm:"size:66;index;not null"`
	Timestamp   int64     `gorm:"not null"`
	CreatedAt   time.Time
}

// Result records the output of an occurrence.
type Result struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID     uint64    `gorm:"uniqueIndex:idx_result_asset_seq;not null"`
	Sequence    uint64    `gorm:"uniqueIndex:idx_result_asset_seq;not null"`
	Fingerprint string    `gorm:"size:66;not null"`
	Timestamp   int64     `gorm:"not null"`
	CreatedAt   time.Time
}

// Controller tracks the current controlling party of an asset and whether it
// is current on its holding cost.
type Controller struct {
	AssetID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Address   string `gorm:"size:42;not null"`
	Solvent   bool   `gorm:"not null;default:true"`
	UpdatedAt time.Time
}

// Event archives a committed settlement event.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Cursor     uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index;not null"`
	Attributes string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Occurrence{},
		&Result{},
		&Controller{},
		&Event{},
	)
}
