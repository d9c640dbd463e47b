package filterspec

import "errors"

var (
	// ErrConfiguration signals an invalid filter declaration. It is returned at
	// setup time, never while serving a request.
	ErrConfiguration = errors.New("invalid filter configuration")
	// ErrMalformedToken signals a wire token that cannot be decoded.
	ErrMalformedToken = errors.New("malformed filter token")
)
