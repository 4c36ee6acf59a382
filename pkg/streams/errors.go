package streams

import "errors"

var (
	// ErrGroupNotFound is returned when a consumer group is not attached to
	// the stream.
	ErrGroupNotFound = errors.New("streams: consumer group not found")
	// ErrMalformedEntry is returned for entries whose fields cannot be
	// decoded, such as an odd field count.
	ErrMalformedEntry = errors.New("streams: malformed entry")
	ErrInvalidOptions = errors.New("streams: invalid options")
)
