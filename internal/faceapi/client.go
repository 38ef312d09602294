package faceapi

import (
	"context"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/ids"
	"person-id-backend/internal/observability"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	serviceName = "face"

	// The face service accepts at most this many face ids per identify call.
	MaxIdentifyFaceIds = 10

	maxCandidates = 1
)

type Client struct {
	client *resty.Client
	cfg    config.FaceServiceConfig
}

func NewClient(cfg config.FaceServiceConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")+"/face/v1.0").
		SetHeader("Ocp-Apim-Subscription-Key", cfg.SubscriptionKey).
		SetTimeout(cfg.Timeout)

	return &Client{client: client, cfg: cfg}
}

func checkResponse(op string, resp *resty.Response, err error) error {
	status := "error"
	if resp != nil && resp.StatusCode() != 0 {
		status = strconv.Itoa(resp.StatusCode())
		observability.RemoteCallDuration.WithLabelValues(serviceName, op, status).Observe(resp.Time().Seconds())
	}

	if err != nil {
		slog.Error("face service request failed", "op", op, "error", err)
		return &types.RemoteServiceError{Service: serviceName, Op: op, Err: err}
	}

	if !resp.IsSuccess() {
		slog.Error("face service returned non-success status", "op", op, "status_code", resp.StatusCode(), "headers", resp.Header(), "body", resp.String())
		return &types.RemoteServiceError{Service: serviceName, Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return nil
}

func (c *Client) CreateGroup(ctx context.Context, groupId ids.GroupId, name string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		SetBody(createGroupRequest{Name: name, RecognitionModel: c.cfg.RecognitionModel}).
		Put("/persongroups/{group_id}")

	if err := checkResponse("create_group", resp, err); err != nil {
		return err
	}

	slog.Info("created person group", "group_id", groupId, "name", name)
	return nil
}

func (c *Client) CreatePerson(ctx context.Context, groupId ids.GroupId, name string) (ids.PersonId, error) {
	var res createPersonResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		SetBody(createPersonRequest{Name: name}).
		SetResult(&res).
		Post("/persongroups/{group_id}/persons")

	if err := checkResponse("create_person", resp, err); err != nil {
		return ids.PersonId{}, err
	}

	return res.PersonId, nil
}

func (c *Client) GetPerson(ctx context.Context, groupId ids.GroupId, personId ids.PersonId) (*Person, error) {
	var res Person
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		SetPathParam("person_id", personId.String()).
		SetResult(&res).
		Get("/persongroups/{group_id}/persons/{person_id}")

	if err := checkResponse("get_person", resp, err); err != nil {
		return nil, err
	}

	return &res, nil
}

// DetectFaces always requests the recognition quality attribute.
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error) {
	var res []detectedFaceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"returnFaceId":         "true",
			"returnFaceAttributes": "qualityForRecognition",
			"recognitionModel":     c.cfg.RecognitionModel,
			"detectionModel":       c.cfg.DetectionModel,
		}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&res).
		Post("/detect")

	if err := checkResponse("detect", resp, err); err != nil {
		return nil, err
	}

	faces := make([]DetectedFace, 0, len(res))
	for _, face := range res {
		detected := DetectedFace{Id: face.FaceId, Rectangle: face.FaceRectangle}
		if face.FaceAttributes != nil {
			detected.Quality = QualityTier(strings.ToLower(string(face.FaceAttributes.QualityForRecognition)))
		}
		faces = append(faces, detected)
	}

	return faces, nil
}

// AddFaceSample enrolls an image for a person and returns the persisted face
// id. The tag is stored as the face's user data.
func (c *Client) AddFaceSample(ctx context.Context, groupId ids.GroupId, personId ids.PersonId, image []byte, tag string) (ids.FaceId, error) {
	var res addFaceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		SetPathParam("person_id", personId.String()).
		SetQueryParams(map[string]string{
			"userData":       tag,
			"detectionModel": c.cfg.DetectionModel,
		}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&res).
		Post("/persongroups/{group_id}/persons/{person_id}/persistedfaces")

	if err := checkResponse("add_face", resp, err); err != nil {
		return ids.FaceId{}, err
	}

	return res.PersistedFaceId, nil
}

func (c *Client) Train(ctx context.Context, groupId ids.GroupId) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		Post("/persongroups/{group_id}/train")

	if err := checkResponse("train", resp, err); err != nil {
		return err
	}

	slog.Info("submitted person group training", "group_id", groupId)
	return nil
}

func (c *Client) GetTrainingStatus(ctx context.Context, groupId ids.GroupId) (TrainingStatus, error) {
	var res TrainingStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		SetResult(&res).
		Get("/persongroups/{group_id}/training")

	if err := checkResponse("training_status", resp, err); err != nil {
		return TrainingStatus{}, err
	}

	res.Status = TrainingState(strings.ToLower(string(res.Status)))
	return res, nil
}

// Identify splits the face ids into batches the service accepts and
// concatenates the results in input order.
func (c *Client) Identify(ctx context.Context, faceIds []ids.FaceId, groupId ids.GroupId) ([]IdentifyResult, error) {
	results := make([]IdentifyResult, 0, len(faceIds))

	for start := 0; start < len(faceIds); start += MaxIdentifyFaceIds {
		end := min(start+MaxIdentifyFaceIds, len(faceIds))

		var res []IdentifyResult
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(identifyRequest{
				FaceIds:                    faceIds[start:end],
				PersonGroupId:              groupId,
				MaxNumOfCandidatesReturned: maxCandidates,
			}).
			SetResult(&res).
			Post("/identify")

		if err := checkResponse("identify", resp, err); err != nil {
			return nil, err
		}

		results = append(results, res...)
	}

	return results, nil
}

func (c *Client) VerifyFaceToPerson(ctx context.Context, faceId ids.FaceId, personId ids.PersonId, groupId ids.GroupId) (VerifyResult, error) {
	var res VerifyResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(verifyRequest{FaceId: faceId, PersonId: personId, PersonGroupId: groupId}).
		SetResult(&res).
		Post("/verify")

	if err := checkResponse("verify", resp, err); err != nil {
		return VerifyResult{}, err
	}

	return res, nil
}

func (c *Client) DeleteGroup(ctx context.Context, groupId ids.GroupId) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group_id", groupId.String()).
		Delete("/persongroups/{group_id}")

	if err := checkResponse("delete_group", resp, err); err != nil {
		return err
	}

	slog.Info("deleted person group", "group_id", groupId)
	return nil
}
