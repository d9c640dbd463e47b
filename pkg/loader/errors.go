package loader

import "errors"

// Sentinel errors returned by loaders and fetchers. Use errors.Is() to check.
var (
	// ErrTransport wraps network failures, unexpected status codes and
	// undecodable bodies. The loader returns to Idle.
	ErrTransport = errors.New("loader: transport failure")
	// ErrAccessDenied is returned for 401/403 responses and login redirects.
	ErrAccessDenied = errors.New("loader: access denied")
	// ErrNotRegistered is returned by the controller for unknown fields.
	ErrNotRegistered = errors.New("loader: field not registered")
)
