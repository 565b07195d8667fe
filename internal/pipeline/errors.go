package pipeline

import "errors"

var (
	// ErrNoDevices is returned when the registry accepts no device. Nothing
	// has been started when it is returned.
	ErrNoDevices = errors.New("pipeline: no devices available")

	// ErrAborted is returned when the run was cancelled before it finished,
	// by a signal or a remote abort.
	ErrAborted = errors.New("pipeline: run aborted")
)
