package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/ids"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coordinator owns every write to the group, person and face tables. Each
// commit runs in a single transaction so a group is never marked trained
// without its face rows.
type Coordinator struct {
	db *gorm.DB
}

func NewCoordinator(db *gorm.DB) *Coordinator {
	return &Coordinator{db: db}
}

func (c *Coordinator) CommitNewGroup(ctx context.Context, group PersonGroup, people []Person, faces []PersonFace) error {
	group.IsTrained = true
	group.People = nil

	return c.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&group).Error; err != nil {
			slog.Error("error inserting person group", "group_id", group.Id, "error", err)
			return err
		}

		return insertPeopleAndFaces(txn, people, faces)
	})
}

func (c *Coordinator) CommitGroupExtension(ctx context.Context, groupId ids.GroupId, modifiedBy string, people []Person, faces []PersonFace) error {
	return c.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&PersonGroup{}).
			Where("id = ? AND is_deleted = ?", groupId.UUID, false).
			Updates(map[string]any{
				"is_trained":  true,
				"modified_by": NullString(modifiedBy),
				"modified_at": time.Now().UTC(),
			})
		if result.Error != nil {
			slog.Error("error updating person group", "group_id", groupId, "error", result.Error)
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("person group %s: %w", groupId, types.ErrNotFound)
		}

		return insertPeopleAndFaces(txn, people, faces)
	})
}

// Rows are inserted one at a time so a failure on any row aborts the whole
// commit.
func insertPeopleAndFaces(txn *gorm.DB, people []Person, faces []PersonFace) error {
	for _, person := range people {
		person.Faces = nil
		if err := txn.Create(&person).Error; err != nil {
			slog.Error("error inserting person", "person_id", person.Id, "error", err)
			return err
		}
	}

	for _, face := range faces {
		if err := txn.Create(&face).Error; err != nil {
			slog.Error("error inserting person face", "face_id", face.FaceId, "person_id", face.PersonId, "error", err)
			return err
		}
	}

	return nil
}

func (c *Coordinator) ListTrainedGroups(ctx context.Context) ([]PersonGroup, error) {
	var groups []PersonGroup
	if err := c.db.WithContext(ctx).
		Preload("People").
		Where("is_trained = ? AND is_deleted = ?", true, false).
		Order("created_at").
		Find(&groups).Error; err != nil {
		slog.Error("error listing trained groups", "error", err)
		return nil, fmt.Errorf("error listing trained groups: %w", err)
	}
	return groups, nil
}

// GetGroup returns ErrNotFound for both missing and soft deleted groups.
func (c *Coordinator) GetGroup(ctx context.Context, groupId ids.GroupId) (*PersonGroup, error) {
	var group PersonGroup
	if err := c.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", groupId.UUID, false).
		First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("person group %s: %w", groupId, types.ErrNotFound)
		}
		slog.Error("error getting person group", "group_id", groupId, "error", err)
		return nil, fmt.Errorf("error getting person group: %w", err)
	}
	return &group, nil
}

// GetGroupPerson returns nil without an error when the group has no person
// with the given name.
func (c *Coordinator) GetGroupPerson(ctx context.Context, groupId ids.GroupId, personName string) (*Person, error) {
	var people []Person
	if err := c.db.WithContext(ctx).
		Where("group_id = ? AND name = ?", groupId.UUID, personName).
		Limit(1).
		Find(&people).Error; err != nil {
		slog.Error("error getting group person", "group_id", groupId, "person_name", personName, "error", err)
		return nil, fmt.Errorf("error getting group person: %w", err)
	}
	if len(people) == 0 {
		return nil, nil
	}
	return &people[0], nil
}

func (c *Coordinator) GetPerson(ctx context.Context, personId ids.PersonId) (*Person, error) {
	var person Person
	if err := c.db.WithContext(ctx).First(&person, "id = ?", personId.UUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("person %s: %w", personId, types.ErrNotFound)
		}
		slog.Error("error getting person", "person_id", personId, "error", err)
		return nil, fmt.Errorf("error getting person: %w", err)
	}
	return &person, nil
}

func (c *Coordinator) SoftDeleteGroup(ctx context.Context, groupId ids.GroupId, modifiedBy string) error {
	result := c.db.WithContext(ctx).
		Model(&PersonGroup{}).
		Where("id = ? AND is_deleted = ?", groupId.UUID, false).
		Updates(map[string]any{
			"is_deleted":  true,
			"modified_by": NullString(modifiedBy),
			"modified_at": time.Now().UTC(),
		})
	if result.Error != nil {
		slog.Error("error soft deleting person group", "group_id", groupId, "error", result.Error)
		return fmt.Errorf("error deleting person group: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("person group %s: %w", groupId, types.ErrNotFound)
	}

	slog.Info("soft deleted person group", "group_id", groupId)
	return nil
}

func (c *Coordinator) RecordIdentificationRun(ctx context.Context, sourceImages []string, matches any, matchCount int) (uuid.UUID, error) {
	return SaveIdentificationRun(ctx, c.db, sourceImages, matches, matchCount)
}
