package protocol

import "errors"

var (
	// ErrMalformedReply is returned when a line does not start with one of
	// the recognized reply sigils ('+', '-', ':', '$').
	ErrMalformedReply = errors.New("protocol: malformed reply line")
	// ErrMalformedBulkHeader is returned when a "$<n>" header cannot be
	// parsed or its length is negative.
	ErrMalformedBulkHeader = errors.New("protocol: malformed bulk string header")
)

// ReplyError wraps a `-ERR ...` line received from a peer. Callers compare
// its Message against known substrings (e.g. isRestoringError) rather than
// relying on a version matrix the wire protocol does not provide.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return "protocol: peer error: " + e.Message
}
