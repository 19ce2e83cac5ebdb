package recorder

import "errors"

// Error enumeration surfaced to callers of the public Recorder operations.
var (
	ErrAlreadyRecording  = errors.New("recorder: already recording")
	ErrFailedToOpen      = errors.New("recorder: failed to open log")
	ErrFailedToSubscribe = errors.New("recorder: failed to subscribe")
)
