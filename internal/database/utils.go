package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateTrainingJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobSucceeded || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&TrainingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating training job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func CompleteTrainingJob(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, groupId uuid.UUID, acceptedFaces int) error {
	updates := map[string]any{
		"status":          JobSucceeded,
		"completion_time": time.Now().UTC(),
		"accepted_faces":  acceptedFaces,
	}
	if groupId != uuid.Nil {
		updates["group_id"] = uuid.NullUUID{UUID: groupId, Valid: true}
	}

	if err := txn.WithContext(ctx).Model(&TrainingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error completing training job", "job_id", jobId, "error", err)
		return err
	}
	return nil
}

func FailTrainingJob(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, errorMessage string) error {
	updates := map[string]any{
		"status":          JobFailed,
		"completion_time": time.Now().UTC(),
		"error":           errorMessage,
	}

	if err := txn.WithContext(ctx).Model(&TrainingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error failing training job", "job_id", jobId, "error", err)
		return err
	}
	return nil
}

func SaveIdentificationRun(ctx context.Context, txn *gorm.DB, sourceImages []string, matches any, matchCount int) (uuid.UUID, error) {
	data, err := json.Marshal(matches)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error serializing identification matches: %w", err)
	}

	run := IdentificationRun{
		Id:           uuid.New(),
		CreationTime: time.Now().UTC(),
		SourceImages: strings.Join(sourceImages, ","),
		MatchCount:   matchCount,
		Matches:      data,
	}

	if err := txn.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error saving identification run", "error", err)
		return uuid.Nil, fmt.Errorf("error saving identification run: %w", err)
	}
	return run.Id, nil
}

func SplitImages(images string) []string {
	if images == "" {
		return nil
	}
	return strings.Split(images, ",")
}

func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
