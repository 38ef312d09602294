package api

import (
	"errors"
	"log/slog"
	"net/http"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core"
	"person-id-backend/internal/database"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/messaging"
	"person-id-backend/internal/storage"
	"person-id-backend/pkg/api"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type BackendService struct {
	db         *gorm.DB
	store      *database.Coordinator
	blobs      storage.BlobStore
	faces      core.FaceService
	identifier *core.IdentificationOrchestrator
	publisher  messaging.Publisher
	actor      string
}

func NewBackendService(db *gorm.DB, blobs storage.BlobStore, faces core.FaceService, identifier *core.IdentificationOrchestrator, publisher messaging.Publisher, cfg config.PipelineConfig) *BackendService {
	return &BackendService{
		db:         db,
		store:      database.NewCoordinator(db),
		blobs:      blobs,
		faces:      faces,
		identifier: identifier,
		publisher:  publisher,
		actor:      cfg.Actor,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/training", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitTrainingJob))
		r.Get("/{job_id}", RestHandler(s.GetTrainingJob))
	})

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListGroups))
		r.Delete("/{group_id}", RestHandler(s.DeleteGroup))
		r.Get("/{group_id}/training-status", RestHandler(s.GetTrainingStatus))
	})

	r.Post("/identification", RestHandler(s.Identify))
}

func (s *BackendService) SubmitTrainingJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TrainingRequest](r)
	if err != nil {
		return nil, err
	}

	if len(req.Images) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "at least one image is required")
	}
	if err := validateName("person", req.PersonName); err != nil {
		return nil, err
	}

	ctx := r.Context()

	job := database.TrainingJob{PersonName: req.PersonName}
	if req.PersonGroupId != nil {
		group, err := s.store.GetGroup(ctx, ids.GroupId{UUID: *req.PersonGroupId})
		if err != nil {
			return nil, pipelineError(err)
		}
		job.Mode = core.ExtendGroup.String()
		job.GroupId = uuid.NullUUID{UUID: group.Id, Valid: true}
		job.GroupName = group.Name
	} else {
		if err := validateName("group", req.GroupName); err != nil {
			return nil, err
		}
		job.Mode = core.CreateGroup.String()
		job.GroupName = req.GroupName
	}

	var images, skipped []string
	for _, name := range req.Images {
		if name == "" || strings.Contains(name, ",") {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid image name '%s'", name)
		}

		exists, err := s.blobs.Exists(ctx, name)
		if err != nil {
			slog.Error("error checking training image", "image", name, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error checking image '%s'", name)
		}
		if !exists {
			slog.Warn("training image does not exist, skipping", "image", name)
			skipped = append(skipped, name)
			continue
		}
		images = append(images, name)
	}

	if len(images) == 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "none of the provided images exist")
	}
	job.Images = strings.Join(images, ",")

	jobId, err := core.EnqueueTrainingJob(ctx, s.db, s.publisher, job)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue training job")
	}

	return api.TrainingResponse{JobId: jobId, SkippedImages: skipped}, nil
}

func (s *BackendService) GetTrainingJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.TrainingJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "training job not found")
		}
		slog.Error("error getting training job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training job record")
	}

	return convertTrainingJob(job), nil
}

func (s *BackendService) GetTrainingStatus(r *http.Request) (any, error) {
	groupId, err := URLParamUUID(r, "group_id")
	if err != nil {
		return nil, err
	}

	status, err := s.faces.GetTrainingStatus(r.Context(), ids.GroupId{UUID: groupId})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "person group %s not found", groupId)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	return api.TrainingStatus{GroupId: groupId, Status: string(status.Status), Message: status.Message}, nil
}

func (s *BackendService) ListGroups(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListGroupsParams](r)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Preload("People").Order("created_at")
	if !params.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	var groups []database.PersonGroup
	if err := query.Find(&groups).Error; err != nil {
		slog.Error("error listing person groups", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing person groups")
	}

	res := make([]api.PersonGroup, 0, len(groups))
	for _, group := range groups {
		res = append(res, convertGroup(group))
	}
	return res, nil
}

func (s *BackendService) DeleteGroup(r *http.Request) (any, error) {
	groupId, err := URLParamUUID(r, "group_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	id := ids.GroupId{UUID: groupId}

	if _, err := s.store.GetGroup(ctx, id); err != nil {
		return nil, pipelineError(err)
	}

	if err := s.faces.DeleteGroup(ctx, id); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return nil, CodedError(http.StatusInternalServerError, err)
		}
		slog.Warn("person group was already removed from the face service", "group_id", id)
	}

	if err := s.store.SoftDeleteGroup(ctx, id, s.actor); err != nil {
		return nil, pipelineError(err)
	}

	return nil, nil
}

func (s *BackendService) Identify(r *http.Request) (any, error) {
	req, err := ParseRequest[api.IdentificationRequest](r)
	if err != nil {
		return nil, err
	}

	if len(req.Images) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "at least one image is required")
	}

	matches, err := s.identifier.Identify(r.Context(), req.Images)
	if err != nil {
		return nil, pipelineError(err)
	}

	res := api.IdentificationResponse{Matches: make([]api.IdentificationMatch, 0, len(matches))}
	for _, match := range matches {
		res.Matches = append(res.Matches, convertMatch(match))
	}
	return res, nil
}
