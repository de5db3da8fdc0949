package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type Task struct {
	TotalRows     int `gorm:"default:0"`
	ProcessedRows int `gorm:"default:0"`
}

func Migration(db *gorm.DB) error {
	for _, column := range []string{"total_rows", "processed_rows"} {
		if err := db.Migrator().AddColumn(&Task{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}
		if err := db.Model(&Task{}).
			Where(column + " IS NULL").
			Update(column, 0).Error; err != nil {
			return fmt.Errorf("error setting default value for %s: %w", column, err)
		}
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range []string{"processed_rows", "total_rows"} {
		if err := db.Migrator().DropColumn(&Task{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}
	return nil
}
