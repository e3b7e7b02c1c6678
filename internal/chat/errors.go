package chat

import "errors"

// Sentinel errors returned by the turn orchestrator. The web layer maps
// them to HTTP statuses; anything else is reported to the client only as
// GenericErrorMessage.
var (
	// ErrMalformedRequest marks a request missing its conversation id or
	// final user message.
	ErrMalformedRequest = errors.New("malformed chat request")

	// ErrForbidden marks an attempt to write to a conversation owned by a
	// different session.
	ErrForbidden = errors.New("conversation belongs to another session")

	// ErrGeneration marks a model failure after streaming may have begun.
	ErrGeneration = errors.New("generation failed")
)

// GenericErrorMessage is the only error text ever shown to the client for
// generation failures. Provider details stay in the server log.
const GenericErrorMessage = "Oops, an error occured!"
