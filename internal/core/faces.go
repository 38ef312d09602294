package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/observability"

	"github.com/disintegration/imaging"
)

// FaceService is the subset of the remote face recognition api the pipeline
// depends on. It is implemented by faceapi.Client.
type FaceService interface {
	CreateGroup(ctx context.Context, groupId ids.GroupId, name string) error

	CreatePerson(ctx context.Context, groupId ids.GroupId, name string) (ids.PersonId, error)

	GetPerson(ctx context.Context, groupId ids.GroupId, personId ids.PersonId) (*faceapi.Person, error)

	DetectFaces(ctx context.Context, image []byte) ([]faceapi.DetectedFace, error)

	AddFaceSample(ctx context.Context, groupId ids.GroupId, personId ids.PersonId, image []byte, tag string) (ids.FaceId, error)

	Train(ctx context.Context, groupId ids.GroupId) error

	GetTrainingStatus(ctx context.Context, groupId ids.GroupId) (faceapi.TrainingStatus, error)

	Identify(ctx context.Context, faceIds []ids.FaceId, groupId ids.GroupId) ([]faceapi.IdentifyResult, error)

	VerifyFaceToPerson(ctx context.Context, faceId ids.FaceId, personId ids.PersonId, groupId ids.GroupId) (faceapi.VerifyResult, error)

	DeleteGroup(ctx context.Context, groupId ids.GroupId) error
}

var _ FaceService = (*faceapi.Client)(nil)

// DetectAcceptedFaces runs detection with quality attributes and drops the
// faces the filter rejects.
func DetectAcceptedFaces(ctx context.Context, faces FaceService, filter *QualityFilter, image []byte) ([]faceapi.DetectedFace, error) {
	detected, err := faces.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}
	observability.FacesDetected.WithLabelValues("identification").Add(float64(len(detected)))

	accepted := make([]faceapi.DetectedFace, 0, len(detected))
	for _, face := range detected {
		if filter.IsAcceptable(face) {
			accepted = append(accepted, face)
		}
	}
	return accepted, nil
}

// cropFace cuts the face rectangle out of an encoded image and re-encodes it
// as JPEG.
func cropFace(data []byte, rect faceapi.Rectangle) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}

	bounds := image.Rect(rect.Left, rect.Top, rect.Left+rect.Width, rect.Top+rect.Height).
		Add(img.Bounds().Min).
		Intersect(img.Bounds())
	if bounds.Empty() {
		return nil, fmt.Errorf("face rectangle %+v is outside of the image", rect)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Crop(img, bounds), imaging.JPEG); err != nil {
		return nil, fmt.Errorf("error encoding face crop: %w", err)
	}
	return buf.Bytes(), nil
}
