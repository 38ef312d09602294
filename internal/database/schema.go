package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit columns shared by the group, person and face tables.
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

// Person.Id is the person id assigned by the face service.
type Person struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	GroupId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name    string    `gorm:"not null"`

	Audit `gorm:"embedded"`

	Faces []PersonFace `gorm:"foreignKey:PersonId;constraint:OnDelete:CASCADE"`
}

// PersonFace.FaceId is the persisted face id assigned by the face service.
// Rows are never updated after insertion.
type PersonFace struct {
	FaceId         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PersonId       uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceBlobName string
	SourceBlobUrl  string
	IsTrained      bool `gorm:"default:false"`

	Audit `gorm:"embedded"`
}

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobSucceeded string = "SUCCEEDED"
	JobFailed    string = "FAILED"
)

const (
	ModeCreateGroup string = "CREATE_GROUP"
	ModeExtendGroup string = "EXTEND_GROUP"
)

type TrainingJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Set up front for extensions, and once training succeeds for new groups.
	GroupId    uuid.NullUUID `gorm:"type:uuid"`
	GroupName  string
	PersonName string
	Mode       string `gorm:"size:20;not null"`

	Status         string `gorm:"size:20;not null"`
	Error          string
	Images         string
	AcceptedFaces  int `gorm:"default:0"`
	CreationTime   time.Time
	CompletionTime sql.NullTime
}

type IdentificationRun struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreationTime time.Time
	SourceImages string
	MatchCount   int            `gorm:"default:0"`
	Matches      datatypes.JSON `gorm:"type:jsonb"`
}
