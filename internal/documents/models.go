// Package documents defines the raw viewer tables for shared documents.
// Rows are written by the ingestion pipeline; this service only reads them
// (and prunes them past the retention window).
package documents

import "time"

// Sentinel values the ingestion pipeline stores when enrichment fails.
const (
	UnknownCountry = "unknown"
	UnknownDevice  = "unknown"
	UnknownBrowser = "unknown"
)

// FunnelStage is one step of the open → view → sign progression.
type FunnelStage string

const (
	StageOpened FunnelStage = "opened"
	StageViewed FunnelStage = "viewed"
	StageSigned FunnelStage = "signed"
)

// FunnelStages lists the stages in progression order.
var FunnelStages = []FunnelStage{StageOpened, StageViewed, StageSigned}

// Document is a shared document whose viewers are tracked.
type Document struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"not null"`
	PageCount int    `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ViewerSession is one visit of a viewer to a document.
type ViewerSession struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	DocumentID      string    `gorm:"index:idx_session_document_started;size:64;not null"`
	ViewerSignature string    `gorm:"index;size:64;not null"`
	Country         string    `gorm:"index;size:8;not null;default:unknown"`
	DeviceType      string    `gorm:"not null;default:unknown"`
	Browser         string    `gorm:"not null;default:unknown"`
	DurationSeconds float64   `gorm:"not null;default:0"`
	StartedAt       time.Time `gorm:"index:idx_session_document_started;not null"`
	CreatedAt       time.Time
}

// PageView is time spent by a session on one page of a document.
type PageView struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	DocumentID      string    `gorm:"index;size:64;not null"`
	SessionID       uint      `gorm:"index;not null"`
	PageNumber      int       `gorm:"not null"`
	DurationSeconds float64   `gorm:"not null;default:0"`
	ViewedAt        time.Time `gorm:"index;not null"`
	CreatedAt       time.Time
}

// FunnelEvent records that a session reached a funnel stage.
type FunnelEvent struct {
	ID         uint        `gorm:"primaryKey;autoIncrement"`
	DocumentID string      `gorm:"index:idx_funnel_document_stage;size:64;not null"`
	SessionID  uint        `gorm:"index;not null"`
	Stage      FunnelStage `gorm:"index:idx_funnel_document_stage;size:16;not null"`
	OccurredAt time.Time   `gorm:"not null"`
	CreatedAt  time.Time
}

// AllModels returns every model owned by this package, for migrations.
func AllModels() []any {
	return []any{
		&Document{},
		&ViewerSession{},
		&PageView{},
		&FunnelEvent{},
	}
}
