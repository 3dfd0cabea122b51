package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoEvents          = errors.New("no events for security")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrUnresolvedFlatten = errors.New("pending flatten unresolved at end of stream")
	ErrFeedClosed        = errors.New("event feed closed")
)
