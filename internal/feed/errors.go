package feed

import (
	"errors"

	"github.com/okian/loopfeed/internal/domain/filter"
)

var (
	// ErrPrimaryQuery wraps failures of the query a feed cannot be built without.
	ErrPrimaryQuery = errors.New("primary query failed")
	// ErrRankUnsupported is returned by stores that reject a rank hint.
	ErrRankUnsupported = errors.New("rank hint unsupported")
	// ErrInvalidRequest is returned for requests that cannot be planned.
	ErrInvalidRequest = filter.ErrInvalidRequest
	// ErrFollowSet is returned when a personalized feed's follow set is unavailable.
	ErrFollowSet = filter.ErrFollowSet
)
