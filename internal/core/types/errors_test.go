package types_test

import (
	"errors"
	"fmt"
	"net/http"
	"person-id-backend/internal/core/types"
	"person-id-backend/internal/ids"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteServiceErrorMatchesNotFoundOn404(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &types.RemoteServiceError{Service: "face", Op: "get_person", StatusCode: http.StatusNotFound})
	assert.ErrorIs(t, err, types.ErrNotFound)

	var remoteErr *types.RemoteServiceError
	assert.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "get_person", remoteErr.Op)

	other := &types.RemoteServiceError{Service: "face", Op: "train", StatusCode: http.StatusBadGateway}
	assert.NotErrorIs(t, other, types.ErrNotFound)
}

func TestTrainingErrorsMatchSentinels(t *testing.T) {
	group := ids.NewGroupId()

	assert.ErrorIs(t, &types.TrainingFailedError{GroupId: group, Message: "bad"}, types.ErrTrainingFailed)
	assert.ErrorIs(t, &types.TrainingTimeoutError{GroupId: group, Attempts: 3}, types.ErrTrainingTimeout)
	assert.ErrorIs(t, types.ValidationErrorf("group name is required"), types.ErrValidation)
}
