package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/story"
)

// ErrorKind classifies a failed generation call.
type ErrorKind string

const (
	// ErrKindNetwork covers transport failures and timeouts.
	ErrKindNetwork ErrorKind = "network"
	// ErrKindHTTP covers non-2xx responses.
	ErrKindHTTP ErrorKind = "http"
	// ErrKindParse covers bodies with no parsable JSON object.
	ErrKindParse ErrorKind = "parse"
	// ErrKindSchema covers parsable JSON missing required fields.
	ErrKindSchema ErrorKind = "schema"
)

// GenerationError is a failed generation call. All kinds mean the same
// thing to a caller: no node was produced, session state must not change.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// AsGenerationError unwraps err to a *GenerationError, or nil.
func AsGenerationError(err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return nil
}

// GenerateOptions control one generation call.
type GenerateOptions struct {
	// Stream reads the response as server-sent events.
	Stream bool
	// OnToken, when set with Stream, receives each text increment
	// synchronously in arrival order. It must only accumulate display
	// text; session state is committed by the caller after the full
	// result validates.
	OnToken func(token string)
}

// Generator issues one model request and turns the result into a
// candidate story node. Implementations never retry; retry policy
// belongs to the caller.
type Generator interface {
	Generate(ctx context.Context, prompt prompts.Prompt, opts GenerateOptions) (*story.NodeDraft, error)
}
