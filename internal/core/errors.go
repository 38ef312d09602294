package core

import "person-id-backend/internal/core/types"

// Re-exported so callers of the orchestrators only need this package.
var (
	ErrValidation      = types.ErrValidation
	ErrNotFound        = types.ErrNotFound
	ErrTrainingFailed  = types.ErrTrainingFailed
	ErrTrainingTimeout = types.ErrTrainingTimeout
	ErrPersistence     = types.ErrPersistence
)

type (
	RemoteServiceError   = types.RemoteServiceError
	TrainingFailedError  = types.TrainingFailedError
	TrainingTimeoutError = types.TrainingTimeoutError
)
