package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe    = errors.New("site serve failed")
	ErrShutdown = errors.New("site shutdown failed")
)
