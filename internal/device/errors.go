package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDuplicatePort) {
//	    // record was dropped because of a port clash
//	}
var (
	// ErrUnreadableRecord is returned when a record file cannot be read.
	ErrUnreadableRecord = errors.New("device: unreadable record")

	// ErrInvalidRecord is returned when a record lacks a UDID or carries
	// unusable ports.
	ErrInvalidRecord = errors.New("device: invalid record")

	// ErrDuplicatePort is returned when a record reuses a port already
	// claimed by another device of the fleet.
	ErrDuplicatePort = errors.New("device: duplicate port")
)
