package migration_1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IdentificationRun struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreationTime time.Time
	SourceImages string
	MatchCount   int            `gorm:"default:0"`
	Matches      datatypes.JSON `gorm:"type:jsonb"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&IdentificationRun{}); err != nil {
		return fmt.Errorf("error creating identification_runs table: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&IdentificationRun{}); err != nil {
		return fmt.Errorf("error dropping identification_runs table: %w", err)
	}
	return nil
}
