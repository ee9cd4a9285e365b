// Package llm is the boundary to the language inference capability.
package llm

import (
	"context"
	"errors"

	"github.com/xaenox/recipebot/internal/models"
)

// Mode selects the sampling behaviour of an inference call.
type Mode int

const (
	// Deterministic is used for classification and extraction.
	Deterministic Mode = iota
	// Creative is used for free-form composition.
	Creative
)

func (m Mode) String() string {
	if m == Creative {
		return "creative"
	}
	return "deterministic"
}

// Format selects the shape of the generated answer.
type Format int

const (
	Text Format = iota
	// Structured asks for a single JSON object.
	Structured
)

// Message is one entry of the prompt conversation.
type Message struct {
	Role    models.Role
	Content string
}

// Request is a single inference call.
type Request struct {
	System   string
	Messages []Message
	Mode     Mode
	Format   Format
}

// Inference generates text for a prompt. Failures are returned as errors,
// never as content.
type Inference interface {
	Infer(ctx context.Context, req Request) (string, error)
}

// ErrEmptyCompletion is returned when the provider answers without content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// UserPrompt is a convenience for single-message requests.
func UserPrompt(content string) []Message {
	return []Message{{Role: models.RoleUser, Content: content}}
}
