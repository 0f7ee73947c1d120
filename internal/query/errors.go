package query

import "errors"

var (
	// ErrInvariant reports a query that could not be compiled because an
	// internal transformation produced something unusable.
	ErrInvariant = errors.New("something went wrong running your query")

	// ErrTermLimit is returned for expressions with too many terms.
	ErrTermLimit = errors.New("query has too many terms")

	// ErrNoSourceBinding is returned when a branch of the query does not
	// constrain SOURCE, so no bounded range can be derived for it.
	ErrNoSourceBinding = errors.New("query does not bind SOURCE in every branch")

	// ErrCheckpointNotFound is returned by checkpoint stores.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// ErrInvalidParams is returned for compile parameters that cannot be used.
var ErrInvalidParams = errors.New("invalid query parameters")
