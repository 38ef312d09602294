package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Audit struct {
	CreatedBy  string
	CreatedAt  time.Time
	ModifiedBy sql.NullString
	ModifiedAt sql.NullTime
}

type PersonGroup struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	IsTrained bool      `gorm:"default:false"`
	IsDeleted bool      `gorm:"default:false"`

	Audit `gorm:"embedded"`

	People []Person `gorm:"foreignKey:GroupId;constraint:OnDelete:CASCADE"`
}

type Person struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	GroupId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name    string    `gorm:"not null"`

	Audit `gorm:"embedded"`

	Faces []PersonFace `gorm:"foreignKey:PersonId;constraint:OnDelete:CASCADE"`
}

type PersonFace struct {
	FaceId         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PersonId       uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceBlobName string
	SourceBlobUrl  string
	IsTrained      bool `gorm:"default:false"`

	Audit `gorm:"embedded"`
}

type TrainingJob struct {
	Id             uuid.UUID     `gorm:"type:uuid;primaryKey"`
	GroupId        uuid.NullUUID `gorm:"type:uuid"`
	GroupName      string
	PersonName     string
	Mode           string `gorm:"size:20;not null"`
	Status         string `gorm:"size:20;not null"`
	Error          string
	Images         string
	AcceptedFaces  int `gorm:"default:0"`
	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&PersonGroup{}, &Person{}, &PersonFace{}, &TrainingJob{}); err != nil {
		return fmt.Errorf("error creating person tables: %w", err)
	}
	return nil
}
