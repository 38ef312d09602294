// Package ids defines the identifiers exchanged with the face service. Each
// kind of identifier is its own type so a group id can never be passed where
// a person id is expected.
package ids

import "github.com/google/uuid"

type GroupId struct{ uuid.UUID }

type PersonId struct{ uuid.UUID }

// FaceId identifies either a transient detected face or a persisted face
// sample, depending on which face service call handed it out.
type FaceId struct{ uuid.UUID }

func NewGroupId() GroupId {
	return GroupId{uuid.New()}
}

func ParseGroupId(s string) (GroupId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GroupId{}, err
	}
	return GroupId{id}, nil
}

func ParsePersonId(s string) (PersonId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PersonId{}, err
	}
	return PersonId{id}, nil
}

func ParseFaceId(s string) (FaceId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FaceId{}, err
	}
	return FaceId{id}, nil
}

func (id GroupId) IsZero() bool  { return id.UUID == uuid.Nil }
func (id PersonId) IsZero() bool { return id.UUID == uuid.Nil }
func (id FaceId) IsZero() bool   { return id.UUID == uuid.Nil }
