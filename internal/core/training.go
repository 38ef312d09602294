package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/core/utils"
	"person-id-backend/internal/database"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/observability"
	"person-id-backend/internal/storage"
	"path"
	"strings"
	"time"
)

const discardGroupTimeout = 30 * time.Second

type TrainMode int

const (
	CreateGroup TrainMode = iota
	ExtendGroup
)

func (m TrainMode) String() string {
	switch m {
	case CreateGroup:
		return database.ModeCreateGroup
	case ExtendGroup:
		return database.ModeExtendGroup
	default:
		return fmt.Sprintf("TrainMode(%d)", int(m))
	}
}

func ParseTrainMode(mode string) (TrainMode, error) {
	switch mode {
	case database.ModeCreateGroup:
		return CreateGroup, nil
	case database.ModeExtendGroup:
		return ExtendGroup, nil
	default:
		return 0, types.ValidationErrorf("unknown training mode '%s'", mode)
	}
}

type SourceImage struct {
	Name string
	Url  string
}

type TrainRequest struct {
	Mode TrainMode

	// Required for ExtendGroup, ignored for CreateGroup.
	GroupId ids.GroupId

	// Required for CreateGroup. Extensions keep the stored group name.
	GroupName  string
	PersonName string

	SourceImages []SourceImage
}

func (r TrainRequest) Validate() error {
	if len(r.SourceImages) == 0 {
		return types.ValidationErrorf("at least one source image is required")
	}
	if strings.TrimSpace(r.PersonName) == "" {
		return types.ValidationErrorf("person name must not be empty")
	}

	switch r.Mode {
	case CreateGroup:
		if strings.TrimSpace(r.GroupName) == "" {
			return types.ValidationErrorf("group name must not be empty")
		}
	case ExtendGroup:
		if r.GroupId.IsZero() {
			return types.ValidationErrorf("group id is required to extend a group")
		}
	default:
		return types.ValidationErrorf("unknown training mode %d", int(r.Mode))
	}

	for _, img := range r.SourceImages {
		if img.Name == "" || img.Url == "" {
			return types.ValidationErrorf("source images need a name and a url")
		}
	}
	return nil
}

type TrainResult struct {
	// Zero when a new group was requested but no face could be enrolled.
	GroupId       ids.GroupId
	AcceptedFaces int
}

type TrainingOrchestrator struct {
	faces  FaceService
	blobs  storage.BlobStore
	store  *database.Coordinator
	filter *QualityFilter
	poller *TrainingPoller
	locks  *utils.MutexMap
	actor  string
}

func NewTrainingOrchestrator(faces FaceService, blobs storage.BlobStore, store *database.Coordinator, cfg config.PipelineConfig) *TrainingOrchestrator {
	return &TrainingOrchestrator{
		faces:  faces,
		blobs:  blobs,
		store:  store,
		filter: NewQualityFilter(cfg),
		poller: NewTrainingPoller(faces, cfg),
		locks:  utils.NewMutexMap(cfg.MaxConcurrentGroups),
		actor:  cfg.Actor,
	}
}

// enrollment collects everything a training run has added to the remote
// group and still needs to be committed.
type enrollment struct {
	req       TrainRequest
	groupId   ids.GroupId
	groupName string

	groupCreated bool
	personIds    map[string]ids.PersonId
	newPeople    []database.Person
	faces        []database.PersonFace
}

func (e *enrollment) audit(actor string) database.Audit {
	return database.Audit{CreatedBy: actor, CreatedAt: time.Now().UTC()}
}

// peopleWithFaces drops people that were created remotely but never received
// a face sample.
func (e *enrollment) peopleWithFaces() []database.Person {
	hasFaces := make(map[ids.PersonId]bool)
	for _, face := range e.faces {
		hasFaces[ids.PersonId{UUID: face.PersonId}] = true
	}

	people := make([]database.Person, 0, len(e.newPeople))
	for _, person := range e.newPeople {
		if hasFaces[ids.PersonId{UUID: person.Id}] {
			people = append(people, person)
		}
	}
	return people
}

// Train enrolls the faces found in the source images into the remote group,
// waits for the remote model to finish training and commits the group,
// people and faces in one transaction.
func (o *TrainingOrchestrator) Train(ctx context.Context, req TrainRequest) (TrainResult, error) {
	if err := req.Validate(); err != nil {
		return TrainResult{}, err
	}

	run := &enrollment{
		req:       req,
		groupName: req.GroupName,
		personIds: make(map[string]ids.PersonId),
	}
	if req.Mode == CreateGroup {
		run.groupId = ids.NewGroupId()
	} else {
		run.groupId = req.GroupId
	}

	if err := o.locks.Lock(run.groupId.String()); err != nil {
		return TrainResult{}, fmt.Errorf("unable to start training for group %s: %w", run.groupId, err)
	}
	defer o.locks.Unlock(run.groupId.String()) //nolint:errcheck

	if req.Mode == ExtendGroup {
		group, err := o.store.GetGroup(ctx, run.groupId)
		if err != nil {
			return TrainResult{}, err
		}
		run.groupName = group.Name
	}

	result, err := o.train(ctx, run)
	if err != nil {
		o.discardCreatedGroup(ctx, run)
		return TrainResult{}, err
	}
	return result, nil
}

func (o *TrainingOrchestrator) train(ctx context.Context, run *enrollment) (TrainResult, error) {
	req := run.req
	slog.Info("starting training", "group_id", run.groupId, "mode", req.Mode, "person_name", req.PersonName, "images", len(req.SourceImages))

	for _, img := range req.SourceImages {
		if err := o.enrollImage(ctx, run, img); err != nil {
			return TrainResult{}, err
		}
	}

	if len(run.faces) == 0 {
		slog.Info("no faces were enrolled, skipping training", "group_id", run.groupId, "mode", req.Mode)
		o.discardCreatedGroup(ctx, run)
		observability.TrainingRuns.WithLabelValues("skipped").Inc()

		if req.Mode == CreateGroup {
			return TrainResult{}, nil
		}
		return TrainResult{GroupId: run.groupId}, nil
	}

	if err := o.faces.Train(ctx, run.groupId); err != nil {
		return TrainResult{}, fmt.Errorf("error submitting training for group %s: %w", run.groupId, err)
	}

	status, err := o.poller.Wait(ctx, run.groupId)
	if err != nil {
		if errors.Is(err, ErrTrainingTimeout) {
			observability.TrainingRuns.WithLabelValues("timeout").Inc()
		}
		return TrainResult{}, err
	}

	if status.Status == faceapi.TrainingFailed {
		observability.TrainingRuns.WithLabelValues("failed").Inc()
		slog.Error("training failed", "group_id", run.groupId, "message", status.Message)
		return TrainResult{}, &TrainingFailedError{GroupId: run.groupId, Message: status.Message}
	}

	if err := o.commit(ctx, run); err != nil {
		return TrainResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	observability.TrainingRuns.WithLabelValues("succeeded").Inc()
	slog.Info("training completed", "group_id", run.groupId, "people", len(run.peopleWithFaces()), "faces", len(run.faces))

	return TrainResult{GroupId: run.groupId, AcceptedFaces: len(run.faces)}, nil
}

// enrollImage adds every acceptable face of one image to the remote group.
// Problems with a single image or face are logged and skipped, only failures
// that leave the remote group unusable are returned.
func (o *TrainingOrchestrator) enrollImage(ctx context.Context, run *enrollment, img SourceImage) error {
	data, err := o.blobs.Download(ctx, img.Url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("unable to download training image, skipping", "image", img.Name, "error", err)
		return nil
	}

	detected, err := o.faces.DetectFaces(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("face detection failed, skipping image", "image", img.Name, "error", err)
		return nil
	}
	observability.FacesDetected.WithLabelValues("training").Add(float64(len(detected)))

	if len(detected) == 0 {
		slog.Info("no faces detected in training image", "image", img.Name)
		return nil
	}

	for k, face := range detected {
		if !o.filter.IsAcceptable(face) {
			continue
		}

		sample := data
		if len(detected) > 1 {
			if sample, err = cropFace(data, face.Rectangle); err != nil {
				slog.Warn("unable to crop face, skipping", "image", img.Name, "face_id", face.Id, "error", err)
				continue
			}
		}

		if err := o.ensureGroup(ctx, run); err != nil {
			return err
		}

		var personId ids.PersonId
		if len(detected) > 1 {
			// Every face of a group photo is a different individual.
			personId, err = o.createPerson(ctx, run, multiFacePersonName(run.req.PersonName, img.Name, k))
		} else {
			personId, err = o.resolvePerson(ctx, run, run.req.PersonName)
		}
		if err != nil {
			return err
		}

		faceId, err := o.faces.AddFaceSample(ctx, run.groupId, personId, sample, face.Id.String())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("face sample was not enrolled", "image", img.Name, "face_id", face.Id, "person_id", personId, "error", err)
			observability.EnrollmentFailures.Inc()
			continue
		}
		observability.FacesEnrolled.Inc()

		run.faces = append(run.faces, database.PersonFace{
			FaceId:         faceId.UUID,
			PersonId:       personId.UUID,
			SourceBlobName: img.Name,
			SourceBlobUrl:  img.Url,
			IsTrained:      true,
			Audit:          run.audit(o.actor),
		})
	}

	return nil
}

// ensureGroup creates the remote group the first time a face is about to be
// enrolled into a new group.
func (o *TrainingOrchestrator) ensureGroup(ctx context.Context, run *enrollment) error {
	if run.req.Mode != CreateGroup || run.groupCreated {
		return nil
	}

	if err := o.faces.CreateGroup(ctx, run.groupId, run.groupName); err != nil {
		return fmt.Errorf("error creating person group %s: %w", run.groupId, err)
	}
	run.groupCreated = true
	slog.Info("created person group", "group_id", run.groupId, "group_name", run.groupName)
	return nil
}

func (o *TrainingOrchestrator) resolvePerson(ctx context.Context, run *enrollment, name string) (ids.PersonId, error) {
	if personId, ok := run.personIds[name]; ok {
		return personId, nil
	}

	if run.req.Mode == ExtendGroup {
		existing, err := o.store.GetGroupPerson(ctx, run.groupId, name)
		if err != nil {
			return ids.PersonId{}, err
		}
		if existing != nil {
			personId := ids.PersonId{UUID: existing.Id}
			run.personIds[name] = personId
			return personId, nil
		}
	}

	personId, err := o.createPerson(ctx, run, name)
	if err != nil {
		return ids.PersonId{}, err
	}
	run.personIds[name] = personId
	return personId, nil
}

// createPerson always creates a new remote person, even when one with the
// same name already exists.
func (o *TrainingOrchestrator) createPerson(ctx context.Context, run *enrollment, name string) (ids.PersonId, error) {
	personId, err := o.faces.CreatePerson(ctx, run.groupId, name)
	if err != nil {
		return ids.PersonId{}, fmt.Errorf("error creating person '%s' in group %s: %w", name, run.groupId, err)
	}
	slog.Info("created person", "group_id", run.groupId, "person_id", personId, "person_name", name)

	run.newPeople = append(run.newPeople, database.Person{
		Id:      personId.UUID,
		GroupId: run.groupId.UUID,
		Name:    name,
		Audit:   run.audit(o.actor),
	})
	return personId, nil
}

// multiFacePersonName names the k-th face of a group photo after the image it
// was found in.
func multiFacePersonName(personName, imageName string, k int) string {
	stem := strings.TrimSuffix(path.Base(imageName), path.Ext(imageName))
	return fmt.Sprintf("%s_%s_%d", personName, stem, k+1)
}

// discardCreatedGroup removes a remote group created by this run that will
// not be committed. Runs that extend an existing group leave it alone.
func (o *TrainingOrchestrator) discardCreatedGroup(ctx context.Context, run *enrollment) {
	if !run.groupCreated {
		return
	}
	run.groupCreated = false

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardGroupTimeout)
	defer cancel()

	if err := o.faces.DeleteGroup(ctx, run.groupId); err != nil {
		slog.Warn("unable to delete uncommitted person group", "group_id", run.groupId, "error", err)
		return
	}
	slog.Info("deleted uncommitted person group", "group_id", run.groupId)
}

func (o *TrainingOrchestrator) commit(ctx context.Context, run *enrollment) error {
	people := run.peopleWithFaces()

	if run.req.Mode == CreateGroup {
		group := database.PersonGroup{
			Id:    run.groupId.UUID,
			Name:  run.groupName,
			Audit: run.audit(o.actor),
		}
		return o.store.CommitNewGroup(ctx, group, people, run.faces)
	}

	return o.store.CommitGroupExtension(ctx, run.groupId, o.actor, people, run.faces)
}
