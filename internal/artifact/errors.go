package artifact

import "errors"

var (
	// ErrRelocate is returned when a raw result cannot be moved into staging.
	ErrRelocate = errors.New("artifact: relocate failed")

	// ErrRewrite is returned when a result document cannot be parsed,
	// transformed or written back. The document is left untouched.
	ErrRewrite = errors.New("artifact: rewrite failed")
)
