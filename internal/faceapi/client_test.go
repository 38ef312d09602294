package faceapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/ids"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret-key"

func writeJson(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func newTestClient(t *testing.T, routes func(r chi.Router)) *faceapi.Client {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Ocp-Apim-Subscription-Key") != testKey {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/face/v1.0", routes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return faceapi.NewClient(config.FaceServiceConfig{
		Endpoint:         server.URL + "/",
		SubscriptionKey:  testKey,
		RecognitionModel: "recognition_04",
		DetectionModel:   "detection_03",
		Timeout:          5 * time.Second,
	})
}

func TestDetectFaces(t *testing.T) {
	faceId := uuid.New()
	var body []byte

	client := newTestClient(t, func(r chi.Router) {
		r.Post("/detect", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("returnFaceId"))
			assert.Equal(t, "qualityForRecognition", r.URL.Query().Get("returnFaceAttributes"))
			assert.Equal(t, "recognition_04", r.URL.Query().Get("recognitionModel"))
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			body, _ = io.ReadAll(r.Body)

			writeJson(w, []map[string]any{
				{
					"faceId":         faceId.String(),
					"faceRectangle":  map[string]int{"top": 10, "left": 20, "width": 30, "height": 40},
					"faceAttributes": map[string]string{"qualityForRecognition": "High"},
				},
				{
					"faceId":        uuid.New().String(),
					"faceRectangle": map[string]int{"top": 1, "left": 2, "width": 3, "height": 4},
				},
			})
		})
	})

	faces, err := client.DetectFaces(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), body)

	require.Len(t, faces, 2)
	assert.Equal(t, ids.FaceId{UUID: faceId}, faces[0].Id)
	assert.Equal(t, faceapi.Rectangle{Top: 10, Left: 20, Width: 30, Height: 40}, faces[0].Rectangle)
	assert.Equal(t, faceapi.QualityHigh, faces[0].Quality)
	assert.Equal(t, faceapi.QualityUnknown, faces[1].Quality)
}

func TestCreatePersonAndAddFace(t *testing.T) {
	groupId := ids.NewGroupId()
	personId, persistedId := uuid.New(), uuid.New()

	client := newTestClient(t, func(r chi.Router) {
		r.Put("/persongroups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, groupId.String(), chi.URLParam(r, "group_id"))
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "G", req["name"])
			assert.Equal(t, "recognition_04", req["recognitionModel"])
		})
		r.Post("/persongroups/{group_id}/persons", func(w http.ResponseWriter, r *http.Request) {
			writeJson(w, map[string]string{"personId": personId.String()})
		})
		r.Post("/persongroups/{group_id}/persons/{person_id}/persistedfaces", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, personId.String(), chi.URLParam(r, "person_id"))
			assert.Equal(t, "face-tag", r.URL.Query().Get("userData"))
			writeJson(w, map[string]string{"persistedFaceId": persistedId.String()})
		})
	})

	ctx := context.Background()
	require.NoError(t, client.CreateGroup(ctx, groupId, "G"))

	person, err := client.CreatePerson(ctx, groupId, "alice")
	require.NoError(t, err)
	assert.Equal(t, ids.PersonId{UUID: personId}, person)

	faceId, err := client.AddFaceSample(ctx, groupId, person, []byte("jpeg"), "face-tag")
	require.NoError(t, err)
	assert.Equal(t, ids.FaceId{UUID: persistedId}, faceId)
}

func TestIdentifyBatchesFaceIds(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int

	client := newTestClient(t, func(r chi.Router) {
		r.Post("/identify", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				FaceIds       []string `json:"faceIds"`
				PersonGroupId string   `json:"personGroupId"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			mu.Lock()
			batchSizes = append(batchSizes, len(req.FaceIds))
			mu.Unlock()

			var res []map[string]any
			for _, id := range req.FaceIds {
				res = append(res, map[string]any{"faceId": id, "candidates": []any{}})
			}
			writeJson(w, res)
		})
	})

	var faceIds []ids.FaceId
	for range 23 {
		faceIds = append(faceIds, ids.FaceId{UUID: uuid.New()})
	}

	results, err := client.Identify(context.Background(), faceIds, ids.NewGroupId())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 3}, batchSizes)
	require.Len(t, results, 23)
	for i, res := range results {
		assert.Equal(t, faceIds[i], res.FaceId)
		assert.Empty(t, res.Candidates)
	}
}

func TestVerifyAndTrainingStatus(t *testing.T) {
	client := newTestClient(t, func(r chi.Router) {
		r.Post("/verify", func(w http.ResponseWriter, r *http.Request) {
			writeJson(w, map[string]any{"isIdentical": true, "confidence": 0.87})
		})
		r.Get("/persongroups/{group_id}/training", func(w http.ResponseWriter, r *http.Request) {
			writeJson(w, map[string]any{"status": "Succeeded", "createdDateTime": "2024-01-01T00:00:00Z"})
		})
	})

	ctx := context.Background()
	res, err := client.VerifyFaceToPerson(ctx, ids.FaceId{UUID: uuid.New()}, ids.PersonId{UUID: uuid.New()}, ids.NewGroupId())
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 0.87, res.Confidence, 1e-9)

	status, err := client.GetTrainingStatus(ctx, ids.NewGroupId())
	require.NoError(t, err)
	assert.Equal(t, faceapi.TrainingSucceeded, status.Status)
	assert.True(t, status.Status.IsTerminal())
}

func TestNonSuccessStatusReturnsRemoteError(t *testing.T) {
	client := newTestClient(t, func(r chi.Router) {
		r.Delete("/persongroups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			writeJson(w, map[string]any{"error": map[string]string{"code": "PersonGroupNotFound"}})
		})
		r.Post("/persongroups/{group_id}/train", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	})

	err := client.DeleteGroup(context.Background(), ids.NewGroupId())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)

	var remoteErr *types.RemoteServiceError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
	assert.Contains(t, remoteErr.Body, "PersonGroupNotFound")

	err = client.Train(context.Background(), ids.NewGroupId())
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusTooManyRequests, remoteErr.StatusCode)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}
