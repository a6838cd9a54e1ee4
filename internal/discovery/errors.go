package discovery

import "errors"

// ErrQueryTimeout is returned when a direct Query gets no QUERY_RESPONSE
// within its deadline.
var ErrQueryTimeout = errors.New("discovery: query timed out")
