package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Task struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Filename       string         `gorm:"not null"`
	UploadKey      string         `gorm:"not null"`
	Status         string         `gorm:"size:20;not null;index"`
	Progress       int            `gorm:"default:0"`
	Config         datatypes.JSON `gorm:"not null"`
	ApiKey         string
	Provider       string    `gorm:"size:20;not null"`
	CreationTime   time.Time `gorm:"index"`
	UpdateTime     time.Time
	CompletionTime sql.NullTime
	ErrorMessage   string
	ResultName     string
}

type RowResult struct {
	TaskId     uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RowIndex   int            `gorm:"primaryKey;autoIncrement:false"`
	Attributes datatypes.JSON `gorm:"not null"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Task{}, &RowResult{}); err != nil {
		return fmt.Errorf("error creating task tables: %w", err)
	}
	return nil
}
