package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches copies produced by WithError against their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	// ErrConfiguration is fatal at startup: the process refuses to run.
	ErrConfiguration = &AppError{
		Code:       "CONFIGURATION_ERROR",
		Message:    "Invalid configuration",
		StatusCode: 500,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found in watchlist",
		StatusCode: 404,
	}

	ErrInvalidVector = &AppError{
		Code:       "INVALID_VECTOR",
		Message:    "Embedding dimensionality does not match the configured size",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Similarity threshold must be between -1 and 1",
		StatusCode: 422,
	}

	ErrUnknownBackend = &AppError{
		Code:       "UNKNOWN_BACKEND",
		Message:    "Unknown watchlist backend",
		StatusCode: 500,
	}

	ErrSourceUnavailable = &AppError{
		Code:       "SOURCE_UNAVAILABLE",
		Message:    "Frame source connect or read failure",
		StatusCode: 503,
	}

	ErrDetectionFailed = &AppError{
		Code:       "DETECTION_FAILED",
		Message:    "Face detection collaborator call failed",
		StatusCode: 502,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrStore = &AppError{
		Code:       "STORE_ERROR",
		Message:    "Watchlist backend unavailable",
		StatusCode: 503,
	}

	ErrDispatchFailed = &AppError{
		Code:       "DISPATCH_FAILED",
		Message:    "Event delivery failed",
		StatusCode: 502,
	}
)
