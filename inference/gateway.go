// Package inference wraps the remote language-model completion call: one
// prompt in, one completion out, no streaming.
package inference

import (
	"context"
	"fmt"
)

// Gateway is the boundary to the remote model. A failed call is surfaced
// to the caller; nothing here retries.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// InferenceError wraps a network failure, a remote error payload or a
// malformed response from the model boundary.
type InferenceError struct {
	Message string
	Err     error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference: %s: %v", e.Message, e.Err)
	}
	return "inference: " + e.Message
}

func (e *InferenceError) Unwrap() error { return e.Err }
