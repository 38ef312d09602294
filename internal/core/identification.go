package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/database"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/observability"
	"person-id-backend/internal/storage"
	"time"
)

// ImageSegmenter splits an image into one sub-image per person and returns
// the blob names of the sub-images.
type ImageSegmenter interface {
	Segment(ctx context.Context, fileName, imageUrl string) ([]string, error)
}

type Verification struct {
	FaceId     ids.FaceId `json:"faceId"`
	IsMatch    bool       `json:"isMatch"`
	Confidence float64    `json:"confidence"`
}

type IdentificationMatch struct {
	GroupId         ids.GroupId    `json:"groupId"`
	GroupName       string         `json:"groupName"`
	PersonId        ids.PersonId   `json:"personId"`
	PersonName      string         `json:"personName"`
	SourceImageName string         `json:"sourceImageName"`
	SourceImageUrl  string         `json:"sourceImageUrl"`
	Verifications   []Verification `json:"verifications"`
}

type IdentificationOrchestrator struct {
	faces     FaceService
	blobs     storage.BlobStore
	segmenter ImageSegmenter
	store     *database.Coordinator
	filter    *QualityFilter
	urlTTL    time.Duration
}

func NewIdentificationOrchestrator(faces FaceService, blobs storage.BlobStore, segmenter ImageSegmenter, store *database.Coordinator, cfg config.PipelineConfig) *IdentificationOrchestrator {
	return &IdentificationOrchestrator{
		faces:     faces,
		blobs:     blobs,
		segmenter: segmenter,
		store:     store,
		filter:    NewQualityFilter(cfg),
		urlTTL:    cfg.ReadURLTTL,
	}
}

// segmentFace is a detected face together with the sub-image it came from.
type segmentFace struct {
	faceId   ids.FaceId
	blobName string
	blobUrl  string
}

// Identify matches the people in each image against every trained group.
// Only candidates the face service verifies as the same person are returned,
// ordered by source image, then group, then candidate.
func (o *IdentificationOrchestrator) Identify(ctx context.Context, imageNames []string) ([]IdentificationMatch, error) {
	if len(imageNames) == 0 {
		return nil, types.ValidationErrorf("at least one image is required")
	}

	groups, err := o.store.ListTrainedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if len(groups) == 0 {
		slog.Info("no trained groups to identify against")
	}

	matches := make([]IdentificationMatch, 0)
	for _, name := range imageNames {
		imageMatches, err := o.identifyImage(ctx, name, groups)
		if err != nil {
			return nil, err
		}
		matches = append(matches, imageMatches...)
	}

	if _, err := o.store.RecordIdentificationRun(ctx, imageNames, matches, len(matches)); err != nil {
		slog.Error("unable to record identification run", "images", len(imageNames), "error", err)
	}

	return matches, nil
}

func (o *IdentificationOrchestrator) identifyImage(ctx context.Context, name string, groups []database.PersonGroup) ([]IdentificationMatch, error) {
	exists, err := o.blobs.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("error checking image %s: %w", name, err)
	}
	if !exists {
		slog.Warn("image does not exist, skipping", "image", name)
		return nil, nil
	}

	url, err := o.blobs.GetReadURL(ctx, name, o.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("error getting read url for %s: %w", name, err)
	}
	if url == "" {
		slog.Warn("image does not exist, skipping", "image", name)
		return nil, nil
	}

	segments, err := o.segmenter.Segment(ctx, name, url)
	if err != nil {
		return nil, err
	}

	faces, err := o.detectSegmentFaces(ctx, segments)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		slog.Info("no usable faces found in image", "image", name, "segments", len(segments))
		return nil, nil
	}

	var matches []IdentificationMatch
	for _, group := range groups {
		groupMatches, err := o.identifyInGroup(ctx, group, faces)
		if err != nil {
			return nil, err
		}
		matches = append(matches, groupMatches...)
	}

	slog.Info("identified image", "image", name, "segments", len(segments), "faces", len(faces), "matches", len(matches))
	return matches, nil
}

func (o *IdentificationOrchestrator) detectSegmentFaces(ctx context.Context, segments []string) ([]segmentFace, error) {
	var faces []segmentFace
	for _, segment := range segments {
		url, err := o.blobs.GetReadURL(ctx, segment, o.urlTTL)
		if err != nil {
			return nil, fmt.Errorf("error getting read url for %s: %w", segment, err)
		}
		if url == "" {
			slog.Warn("segment is missing from blob store", "segment", segment)
			continue
		}

		data, err := o.blobs.Download(ctx, url)
		if err != nil {
			slog.Warn("unable to download segment, skipping", "segment", segment, "error", err)
			continue
		}

		detected, err := DetectAcceptedFaces(ctx, o.faces, o.filter, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("face detection failed, skipping segment", "segment", segment, "error", err)
			continue
		}

		for _, face := range detected {
			faces = append(faces, segmentFace{faceId: face.Id, blobName: segment, blobUrl: url})
		}
	}
	return faces, nil
}

func (o *IdentificationOrchestrator) identifyInGroup(ctx context.Context, group database.PersonGroup, faces []segmentFace) ([]IdentificationMatch, error) {
	groupId := ids.GroupId{UUID: group.Id}

	faceIds := make([]ids.FaceId, len(faces))
	sources := make(map[ids.FaceId]segmentFace, len(faces))
	for i, face := range faces {
		faceIds[i] = face.faceId
		sources[face.faceId] = face
	}

	results, err := o.faces.Identify(ctx, faceIds, groupId)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("identification against group failed", "group_id", groupId, "error", err)
		return nil, nil
	}

	people := make(map[ids.PersonId]string, len(group.People))
	for _, person := range group.People {
		people[ids.PersonId{UUID: person.Id}] = person.Name
	}

	var matches []IdentificationMatch
	for _, result := range results {
		if len(result.Candidates) == 0 {
			slog.Info("no candidates for face", "group_id", groupId, "face_id", result.FaceId)
			continue
		}

		source, ok := sources[result.FaceId]
		if !ok {
			slog.Warn("face service returned an unknown face id", "group_id", groupId, "face_id", result.FaceId)
			continue
		}

		for _, candidate := range result.Candidates {
			personName, err := o.personName(ctx, groupId, candidate.PersonId, people)
			if err != nil {
				slog.Warn("unable to look up candidate, skipping", "group_id", groupId, "person_id", candidate.PersonId, "error", err)
				continue
			}

			verification, err := o.faces.VerifyFaceToPerson(ctx, result.FaceId, candidate.PersonId, groupId)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Warn("verification failed, skipping candidate", "group_id", groupId, "person_id", candidate.PersonId, "face_id", result.FaceId, "error", err)
				continue
			}

			if !verification.IsMatch {
				slog.Info("candidate was not verified", "group_id", groupId, "person_id", candidate.PersonId, "confidence", verification.Confidence)
				continue
			}

			observability.IdentificationMatches.Inc()
			matches = append(matches, IdentificationMatch{
				GroupId:         groupId,
				GroupName:       group.Name,
				PersonId:        candidate.PersonId,
				PersonName:      personName,
				SourceImageName: source.blobName,
				SourceImageUrl:  source.blobUrl,
				Verifications: []Verification{{
					FaceId:     result.FaceId,
					IsMatch:    verification.IsMatch,
					Confidence: verification.Confidence,
				}},
			})
		}
	}

	return matches, nil
}

// personName resolves a candidate from the preloaded group, then the
// database, then the face service.
func (o *IdentificationOrchestrator) personName(ctx context.Context, groupId ids.GroupId, personId ids.PersonId, people map[ids.PersonId]string) (string, error) {
	if name, ok := people[personId]; ok {
		return name, nil
	}

	person, err := o.store.GetPerson(ctx, personId)
	if err == nil {
		return person.Name, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	remote, err := o.faces.GetPerson(ctx, groupId, personId)
	if err != nil {
		return "", err
	}
	return remote.Name, nil
}
