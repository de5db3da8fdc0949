package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaskPending    string = "pending"
	TaskProcessing string = "processing"
	TaskCompleted  string = "completed"
	TaskError      string = "error"
)

type Task struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Filename  string `gorm:"not null"`
	UploadKey string `gorm:"not null"`

	Status   string `gorm:"size:20;not null;index"`
	Progress int    `gorm:"default:0"`

	// Config holds the processing config without the key, which lives in ApiKey.
	Config   datatypes.JSON `gorm:"not null"`
	ApiKey   string
	Provider string `gorm:"size:20;not null"`

	TotalRows     int `gorm:"default:0"`
	ProcessedRows int `gorm:"default:0"`

	CreationTime   time.Time `gorm:"index"`
	UpdateTime     time.Time
	CompletionTime sql.NullTime

	ErrorMessage string
	ResultName   string

	Rows []RowResult `gorm:"foreignKey:TaskId;constraint:OnDelete:CASCADE"`
}

// RowResult checkpoints the attributes extracted for one row so a restarted
// worker can skip rows it already processed.
type RowResult struct {
	TaskId     uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RowIndex   int            `gorm:"primaryKey;autoIncrement:false"`
	Attributes datatypes.JSON `gorm:"not null"`
}
