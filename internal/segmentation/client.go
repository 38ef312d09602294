package segmentation

import (
	"context"
	"encoding/base64"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/observability"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const serviceName = "segmentation"

type BoundingBox struct {
	TopX    float64 `json:"topX"`
	TopY    float64 `json:"topY"`
	BottomX float64 `json:"bottomX"`
	BottomY float64 `json:"bottomY"`
}

// Box is one detection returned by the segmentation service. Coordinates are
// fractions of the image width and height.
type Box struct {
	Box     BoundingBox `json:"box"`
	Label   string      `json:"label"`
	Score   float64     `json:"score"`
	Polygon [][]float64 `json:"polygon"`
}

type scoreRequest struct {
	InputData inputData      `json:"input_data"`
	Params    map[string]any `json:"params"`
}

type inputData struct {
	Columns []string `json:"columns"`
	Index   []int    `json:"index"`
	Data    []string `json:"data"`
}

type scoreResult struct {
	Boxes []Box `json:"boxes"`
}

type Client struct {
	client   *resty.Client
	endpoint string
}

func NewClient(cfg config.SegmentationConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	if cfg.Key != "" {
		client.SetAuthToken(cfg.Key)
	}
	if cfg.Deployment != "" {
		client.SetHeader("azureml-model-deployment", cfg.Deployment)
	}

	return &Client{client: client, endpoint: cfg.Endpoint}
}

// Score sends an image to the segmentation service. A non-success status is
// logged and reported as ok=false rather than as an error, only transport
// failures are errors.
func (c *Client) Score(ctx context.Context, image []byte) ([]Box, bool, error) {
	body := scoreRequest{
		InputData: inputData{
			Columns: []string{"image"},
			Index:   []int{0},
			Data:    []string{base64.StdEncoding.EncodeToString(image)},
		},
		Params: map[string]any{},
	}

	var res []scoreResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&res).
		Post(c.endpoint)

	if err != nil {
		slog.Error("segmentation request failed", "error", err)
		return nil, false, &types.RemoteServiceError{Service: serviceName, Op: "score", Err: err}
	}

	observability.RemoteCallDuration.WithLabelValues(serviceName, "score", strconv.Itoa(resp.StatusCode())).Observe(resp.Time().Seconds())

	if !resp.IsSuccess() {
		slog.Error("segmentation service returned non-success status", "status_code", resp.StatusCode(), "headers", resp.Header(), "body", resp.String())
		return nil, false, nil
	}

	// The service answers with one result per input image and only one is sent.
	if len(res) == 0 {
		return nil, true, nil
	}
	return res[0].Boxes, true, nil
}
