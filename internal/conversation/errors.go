package conversation

import "errors"

// Sentinel errors returned by the store. Callers use errors.Is to
// distinguish absence from other persistence failures instead of matching
// on error text.
var (
	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
)
