package api

import (
	"time"

	"github.com/google/uuid"
)

// TrainingRequest creates a new group when PersonGroupId is nil and extends
// the given group otherwise. Images are blob names.
type TrainingRequest struct {
	Images        []string
	GroupName     string
	PersonName    string
	PersonGroupId *uuid.UUID
}

type TrainingResponse struct {
	JobId uuid.UUID

	// Blob names that were not found and will not be used.
	SkippedImages []string `json:"SkippedImages,omitempty"`
}

type TrainingJob struct {
	Id             uuid.UUID
	GroupId        *uuid.UUID `json:"GroupId,omitempty"`
	GroupName      string
	PersonName     string
	Mode           string
	Status         string
	Error          string `json:"Error,omitempty"`
	Images         []string
	AcceptedFaces  int
	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type TrainingStatus struct {
	GroupId uuid.UUID
	Status  string
	Message string `json:"Message,omitempty"`
}

type Person struct {
	Id   uuid.UUID
	Name string
}

type PersonGroup struct {
	Id        uuid.UUID
	Name      string
	IsTrained bool
	IsDeleted bool
	CreatedBy string
	CreatedAt time.Time
	People    []Person
}

type ListGroupsParams struct {
	IncludeDeleted bool `schema:"include_deleted"`
}

type IdentificationRequest struct {
	Images []string
}

type Verification struct {
	FaceId     uuid.UUID
	IsMatch    bool
	Confidence float64
}

type IdentificationMatch struct {
	GroupId         uuid.UUID
	GroupName       string
	PersonId        uuid.UUID
	PersonName      string
	SourceImageName string
	SourceImageUrl  string
	Verifications   []Verification
}

type IdentificationResponse struct {
	Matches []IdentificationMatch
}
