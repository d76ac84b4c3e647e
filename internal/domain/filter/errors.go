package filter

import "errors"

var (
	// ErrInvalidRequest is returned for requests the builder cannot plan.
	ErrInvalidRequest = errors.New("invalid feed request")
	// ErrFollowSet is returned when the viewer's follow set cannot be resolved.
	ErrFollowSet = errors.New("resolve follow set")
)
