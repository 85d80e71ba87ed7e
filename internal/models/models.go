package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RowType identifies the origin operation of a row hash.
type RowType int16

const (
	RowTypeAdd    RowType = 1
	RowTypeUpdate RowType = 2
	RowTypeDelete RowType = 3
)

// SendStatus is the ledger forwarding state of a row hash.
type SendStatus int16

const (
	StatusUnsent SendStatus = 0
	StatusSent   SendStatus = 1
)

// RowHash is one flat (person, event, thing) fact awaiting ledger forwarding.
// A delete is itself a new row of RowTypeDelete; prior rows are never removed.
type RowHash struct {
	ID     int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Type   RowType    `gorm:"type:smallint;not null" json:"type"`
	Status SendStatus `gorm:"type:smallint;not null;default:0" json:"status"`

	PersonIdentifier string `gorm:"size:255;not null;index" json:"person_identifier"`

	EventIdentifier        string     `gorm:"size:255;not null;index" json:"event_identifier"`
	EventCatalogCode       *int64     `json:"event_catalog_code"`
	EventCatalogVersion    *int64     `json:"event_catalog_version"`
	EventStartAt           *time.Time `json:"event_start_at"`
	EventEndAt             *time.Time `json:"event_end_at"`
	EventActorCode         *int64     `json:"event_actor_code"`
	EventActorVersion      *int64     `json:"event_actor_version"`
	EventWfCatalogCode     *int64     `json:"event_wf_catalog_code"`
	EventWfCatalogVersion  *int64     `json:"event_wf_catalog_version"`
	EventAppCatalogCode    *int64     `json:"event_app_catalog_code"`
	EventAppCatalogVersion *int64     `json:"event_app_catalog_version"`

	ThingIdentifier        string     `gorm:"size:255;not null;index" json:"thing_identifier"`
	ThingCatalogCode       *int64     `json:"thing_catalog_code"`
	ThingCatalogVersion    *int64     `json:"thing_catalog_version"`
	ThingActorCode         *int64     `json:"thing_actor_code"`
	ThingActorVersion      *int64     `json:"thing_actor_version"`
	ThingWfCatalogCode     *int64     `json:"thing_wf_catalog_code"`
	ThingWfCatalogVersion  *int64     `json:"thing_wf_catalog_version"`
	ThingAppCatalogCode    *int64     `json:"thing_app_catalog_code"`
	ThingAppCatalogVersion *int64     `json:"thing_app_catalog_version"`

	RowHash         string     `gorm:"size:255" json:"row_hash"`
	RowHashCreateAt *time.Time `json:"row_hash_create_at"`

	IsDisabled bool      `gorm:"not null;default:false" json:"is_disabled"`
	CreatedBy  string    `gorm:"size:255;not null" json:"created_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy  string    `gorm:"size:255;not null" json:"updated_by"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Documents []Document `gorm:"foreignKey:RowHashID" json:"documents"`
}

// TableName keeps the historical table name.
func (RowHash) TableName() string {
	return "row_hash"
}

// Document is a child record of a RowHash.
type Document struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	RowHashID int64 `gorm:"not null;index" json:"row_hash_id"`

	DocIdentifier        string     `gorm:"size:255;not null" json:"doc_identifier"`
	DocCatalogCode       *int64     `json:"doc_catalog_code"`
	DocCatalogVersion    *int64     `json:"doc_catalog_version"`
	DocCreateAt          *time.Time `json:"doc_create_at"`
	DocActorCode         *int64     `json:"doc_actor_code"`
	DocActorVersion      *int64     `json:"doc_actor_version"`
	DocAppCatalogCode    *int64     `json:"doc_app_catalog_code"`
	DocAppCatalogVersion *int64     `json:"doc_app_catalog_version"`

	IsDisabled bool      `gorm:"not null;default:false" json:"is_disabled"`
	CreatedBy  string    `gorm:"size:255;not null" json:"created_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy  string    `gorm:"size:255;not null" json:"updated_by"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the historical table name.
func (Document) TableName() string {
	return "document"
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&RowHash{},
		&Document{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
