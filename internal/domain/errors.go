package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateOperation = errors.New("duplicate operation")

	// Terminal generation-attempt outcomes surfaced to the user.
	ErrInsufficientCredits     = errors.New("insufficient credits")
	ErrPhotoLimitExceeded      = errors.New("photo limit exceeded")
	ErrContentBlocked          = errors.New("content blocked")
	ErrGenerationFailed        = errors.New("generation failed")
	ErrJobCanceled             = errors.New("job canceled")
	ErrPollTimeout             = errors.New("poll timeout")
	ErrResultShapeUnrecognized = errors.New("result shape unrecognized")

	// Recoverable conditions: both degrade instead of aborting the
	// surrounding operation.
	ErrUploadFailed = errors.New("upload failed")
	ErrFileMissing  = errors.New("file missing")
)
