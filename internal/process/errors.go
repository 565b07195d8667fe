package process

import "errors"

// ErrLaunch indicates that a child process could not be started.
var ErrLaunch = errors.New("process: launch failed")
