package types

import (
	"errors"
	"fmt"
	"net/http"
	"person-id-backend/internal/ids"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrTrainingFailed  = errors.New("training failed")
	ErrTrainingTimeout = errors.New("training timed out")
	ErrPersistence     = errors.New("persistence error")
)

func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// RemoteServiceError is returned for transport failures and non-success
// responses from the face or segmentation services. A 404 response also
// matches ErrNotFound.
type RemoteServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s request failed: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Service, e.Op, e.StatusCode, e.Body)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

func (e *RemoteServiceError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type TrainingFailedError struct {
	GroupId ids.GroupId
	Message string
}

func (e *TrainingFailedError) Error() string {
	return fmt.Sprintf("training of group %s failed: %s", e.GroupId, e.Message)
}

func (e *TrainingFailedError) Is(target error) bool {
	return target == ErrTrainingFailed
}

type TrainingTimeoutError struct {
	GroupId  ids.GroupId
	Attempts uint64
}

func (e *TrainingTimeoutError) Error() string {
	return fmt.Sprintf("training of group %s did not finish after %d status checks", e.GroupId, e.Attempts)
}

func (e *TrainingTimeoutError) Is(target error) bool {
	return target == ErrTrainingTimeout
}
