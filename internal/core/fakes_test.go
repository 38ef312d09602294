package core_test

import (
	"context"
	"path/filepath"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/database"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeFaceService keys detections by image content and records every call
// that changes remote state.
type fakeFaceService struct {
	mu sync.Mutex

	detections map[string][]faceapi.DetectedFace
	statuses   []faceapi.TrainingStatus
	statusErr  error
	candidates map[ids.FaceId][]faceapi.Candidate
	verified   map[ids.FaceId]faceapi.VerifyResult
	people     map[ids.PersonId]*faceapi.Person

	// Face ids handed out by AddFaceSample, in order. Random ids are used once
	// this runs out.
	sampleIds []ids.FaceId
	// Tags for which AddFaceSample fails.
	rejectTags map[string]bool
	// Returned by CreatePerson when set.
	personErr error

	createdGroups  []ids.GroupId
	createdPeople  []string
	samples        [][]byte
	trainCalls     int
	statusCalls    int
	deletedGroups  []ids.GroupId
	identifyCalls  int
	verifyRequests int
}

var _ core.FaceService = (*fakeFaceService)(nil)

func newFakeFaceService() *fakeFaceService {
	return &fakeFaceService{
		detections: make(map[string][]faceapi.DetectedFace),
		candidates: make(map[ids.FaceId][]faceapi.Candidate),
		verified:   make(map[ids.FaceId]faceapi.VerifyResult),
		people:     make(map[ids.PersonId]*faceapi.Person),
		rejectTags: make(map[string]bool),
		statuses:   []faceapi.TrainingStatus{{Status: faceapi.TrainingSucceeded}},
	}
}

func (f *fakeFaceService) detect(image string, qualities ...faceapi.QualityTier) []faceapi.DetectedFace {
	var faces []faceapi.DetectedFace
	for i, quality := range qualities {
		faces = append(faces, faceapi.DetectedFace{
			Id:        ids.FaceId{UUID: uuid.New()},
			Rectangle: faceapi.Rectangle{Left: i * 20, Top: 0, Width: 20, Height: 20},
			Quality:   quality,
		})
	}
	f.detections[image] = faces
	return faces
}

func (f *fakeFaceService) CreateGroup(ctx context.Context, groupId ids.GroupId, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdGroups = append(f.createdGroups, groupId)
	return nil
}

func (f *fakeFaceService) CreatePerson(ctx context.Context, groupId ids.GroupId, name string) (ids.PersonId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.personErr != nil {
		return ids.PersonId{}, f.personErr
	}
	personId := ids.PersonId{UUID: uuid.New()}
	f.createdPeople = append(f.createdPeople, name)
	f.people[personId] = &faceapi.Person{PersonId: personId, Name: name}
	return personId, nil
}

func (f *fakeFaceService) GetPerson(ctx context.Context, groupId ids.GroupId, personId ids.PersonId) (*faceapi.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	person, ok := f.people[personId]
	if !ok {
		return nil, &types.RemoteServiceError{Service: "face", Op: "get person", StatusCode: 404}
	}
	return person, nil
}

func (f *fakeFaceService) DetectFaces(ctx context.Context, image []byte) ([]faceapi.DetectedFace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detections[string(image)], nil
}

func (f *fakeFaceService) AddFaceSample(ctx context.Context, groupId ids.GroupId, personId ids.PersonId, image []byte, tag string) (ids.FaceId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectTags[tag] {
		return ids.FaceId{}, &types.RemoteServiceError{Service: "face", Op: "add face", StatusCode: 400, Body: "bad sample"}
	}
	f.samples = append(f.samples, image)

	if len(f.sampleIds) > 0 {
		faceId := f.sampleIds[0]
		f.sampleIds = f.sampleIds[1:]
		return faceId, nil
	}
	return ids.FaceId{UUID: uuid.New()}, nil
}

func (f *fakeFaceService) Train(ctx context.Context, groupId ids.GroupId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trainCalls++
	return nil
}

func (f *fakeFaceService) trainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trainCalls
}

// GetTrainingStatus walks through statuses and then repeats the last one.
func (f *fakeFaceService) GetTrainingStatus(ctx context.Context, groupId ids.GroupId) (faceapi.TrainingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return faceapi.TrainingStatus{}, f.statusErr
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeFaceService) Identify(ctx context.Context, faceIds []ids.FaceId, groupId ids.GroupId) ([]faceapi.IdentifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifyCalls++
	results := make([]faceapi.IdentifyResult, 0, len(faceIds))
	for _, faceId := range faceIds {
		results = append(results, faceapi.IdentifyResult{FaceId: faceId, Candidates: f.candidates[faceId]})
	}
	return results, nil
}

func (f *fakeFaceService) VerifyFaceToPerson(ctx context.Context, faceId ids.FaceId, personId ids.PersonId, groupId ids.GroupId) (faceapi.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyRequests++
	return f.verified[faceId], nil
}

func (f *fakeFaceService) DeleteGroup(ctx context.Context, groupId ids.GroupId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedGroups = append(f.deletedGroups, groupId)
	return nil
}

func createDB(t *testing.T, create ...any) *gorm.DB {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func createBlobStore(t *testing.T) *storage.LocalBlobStore {
	blobs, err := storage.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	return blobs
}

// uploadImage stores content under name and returns it as a training source.
func uploadImage(t *testing.T, blobs storage.BlobStore, name string, content []byte) core.SourceImage {
	require.NoError(t, blobs.Upload(context.Background(), content, name))
	url, err := blobs.GetReadURL(context.Background(), name, time.Hour)
	require.NoError(t, err)
	return core.SourceImage{Name: name, Url: url}
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.MaxPollAttempts = 20
	cfg.Actor = "tester"
	return cfg
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}
