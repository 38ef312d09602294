package database_test

import (
	"context"
	"path/filepath"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/database"
	"person-id-backend/internal/ids"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func newGroupRows(groupId uuid.UUID, personId uuid.UUID, faceIds ...uuid.UUID) (database.PersonGroup, []database.Person, []database.PersonFace) {
	audit := database.Audit{CreatedBy: "tester", CreatedAt: time.Now().UTC()}

	group := database.PersonGroup{Id: groupId, Name: "G", Audit: audit}
	people := []database.Person{{Id: personId, GroupId: groupId, Name: "alice", Audit: audit}}

	var faces []database.PersonFace
	for i, faceId := range faceIds {
		faces = append(faces, database.PersonFace{
			FaceId:         faceId,
			PersonId:       personId,
			SourceBlobName: "img" + string(rune('a'+i)) + ".jpg",
			SourceBlobUrl:  "file:///blobs/img.jpg",
			IsTrained:      true,
			Audit:          audit,
		})
	}

	return group, people, faces
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func TestCommitNewGroup(t *testing.T) {
	db := createDB(t)
	coordinator := database.NewCoordinator(db)

	groupId, personId := uuid.New(), uuid.New()
	group, people, faces := newGroupRows(groupId, personId, uuid.New(), uuid.New())

	require.NoError(t, coordinator.CommitNewGroup(context.Background(), group, people, faces))

	var stored database.PersonGroup
	require.NoError(t, db.Preload("People.Faces").First(&stored, "id = ?", groupId).Error)
	assert.True(t, stored.IsTrained)
	assert.False(t, stored.IsDeleted)
	require.Len(t, stored.People, 1)
	assert.Equal(t, personId, stored.People[0].Id)
	assert.Len(t, stored.People[0].Faces, 2)
}

func TestCommitNewGroupIsAllOrNothing(t *testing.T) {
	existingFace := uuid.New()

	otherGroup, otherPeople, otherFaces := newGroupRows(uuid.New(), uuid.New(), existingFace)
	db := createDB(t)
	coordinator := database.NewCoordinator(db)
	require.NoError(t, coordinator.CommitNewGroup(context.Background(), otherGroup, otherPeople, otherFaces))

	groupId := uuid.New()
	// The last face collides with an existing primary key, so the final insert fails.
	group, people, faces := newGroupRows(groupId, uuid.New(), uuid.New(), uuid.New(), existingFace)

	err := coordinator.CommitNewGroup(context.Background(), group, people, faces)
	require.Error(t, err)

	assert.Equal(t, int64(1), countRows(t, db, &database.PersonGroup{}))
	assert.Equal(t, int64(1), countRows(t, db, &database.Person{}))
	assert.Equal(t, int64(1), countRows(t, db, &database.PersonFace{}))

	var missing []database.PersonGroup
	require.NoError(t, db.Find(&missing, "id = ?", groupId).Error)
	assert.Empty(t, missing)
}

func TestCommitGroupExtension(t *testing.T) {
	db := createDB(t)
	coordinator := database.NewCoordinator(db)

	groupId, personId := uuid.New(), uuid.New()
	group, people, faces := newGroupRows(groupId, personId, uuid.New())
	require.NoError(t, coordinator.CommitNewGroup(context.Background(), group, people, faces))

	newFace := database.PersonFace{FaceId: uuid.New(), PersonId: personId, SourceBlobName: "new.jpg", IsTrained: true}
	require.NoError(t, coordinator.CommitGroupExtension(context.Background(), ids.GroupId{UUID: groupId}, "tester", nil, []database.PersonFace{newFace}))

	assert.Equal(t, int64(2), countRows(t, db, &database.PersonFace{}))

	var stored database.PersonGroup
	require.NoError(t, db.First(&stored, "id = ?", groupId).Error)
	assert.True(t, stored.ModifiedAt.Valid)
	assert.Equal(t, "tester", stored.ModifiedBy.String)
}

func TestCommitGroupExtensionUnknownGroup(t *testing.T) {
	db := createDB(t)
	coordinator := database.NewCoordinator(db)

	person := database.Person{Id: uuid.New(), GroupId: uuid.New(), Name: "bob"}
	err := coordinator.CommitGroupExtension(context.Background(), ids.NewGroupId(), "tester", []database.Person{person}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, int64(0), countRows(t, db, &database.Person{}))
}

func TestListTrainedGroups(t *testing.T) {
	trained, untrained, deleted := uuid.New(), uuid.New(), uuid.New()
	db := createDB(t,
		&database.PersonGroup{Id: trained, Name: "trained", IsTrained: true},
		&database.PersonGroup{Id: untrained, Name: "untrained"},
		&database.PersonGroup{Id: deleted, Name: "deleted", IsTrained: true, IsDeleted: true},
		&database.Person{Id: uuid.New(), GroupId: trained, Name: "alice"},
	)
	coordinator := database.NewCoordinator(db)

	groups, err := coordinator.ListTrainedGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, trained, groups[0].Id)
	require.Len(t, groups[0].People, 1)
	assert.Equal(t, "alice", groups[0].People[0].Name)
}

func TestGetGroupPerson(t *testing.T) {
	groupId, personId := uuid.New(), uuid.New()
	db := createDB(t,
		&database.PersonGroup{Id: groupId, Name: "G", IsTrained: true},
		&database.Person{Id: personId, GroupId: groupId, Name: "alice"},
	)
	coordinator := database.NewCoordinator(db)

	person, err := coordinator.GetGroupPerson(context.Background(), ids.GroupId{UUID: groupId}, "alice")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, personId, person.Id)

	person, err = coordinator.GetGroupPerson(context.Background(), ids.GroupId{UUID: groupId}, "bob")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestSoftDeleteGroup(t *testing.T) {
	groupId := uuid.New()
	db := createDB(t,
		&database.PersonGroup{Id: groupId, Name: "G", IsTrained: true},
		&database.Person{Id: uuid.New(), GroupId: groupId, Name: "alice"},
	)
	coordinator := database.NewCoordinator(db)

	require.NoError(t, coordinator.SoftDeleteGroup(context.Background(), ids.GroupId{UUID: groupId}, "tester"))

	var stored database.PersonGroup
	require.NoError(t, db.First(&stored, "id = ?", groupId).Error)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, int64(1), countRows(t, db, &database.Person{}))

	_, err := coordinator.GetGroup(context.Background(), ids.GroupId{UUID: groupId})
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = coordinator.SoftDeleteGroup(context.Background(), ids.GroupId{UUID: groupId}, "tester")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestTrainingJobStatusHelpers(t *testing.T) {
	jobId := uuid.New()
	db := createDB(t, &database.TrainingJob{Id: jobId, GroupName: "G", PersonName: "alice", Mode: database.ModeCreateGroup, Status: database.JobQueued, CreationTime: time.Now().UTC()})

	require.NoError(t, database.UpdateTrainingJobStatus(context.Background(), db, jobId, database.JobRunning))

	var job database.TrainingJob
	require.NoError(t, db.First(&job, "id = ?", jobId).Error)
	assert.Equal(t, database.JobRunning, job.Status)
	assert.False(t, job.CompletionTime.Valid)

	groupId := uuid.New()
	require.NoError(t, database.CompleteTrainingJob(context.Background(), db, jobId, groupId, 2))
	require.NoError(t, db.First(&job, "id = ?", jobId).Error)
	assert.Equal(t, database.JobSucceeded, job.Status)
	assert.Equal(t, uuid.NullUUID{UUID: groupId, Valid: true}, job.GroupId)
	assert.Equal(t, 2, job.AcceptedFaces)
	assert.True(t, job.CompletionTime.Valid)
}
