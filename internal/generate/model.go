// Package generate adapts generative text models for skill execution and
// intent classification.
//
// The orchestration core only sees the Model interface. LangChain wraps any
// langchaingo llms.Model (OpenAI-compatible endpoints, Ollama) with rate
// limiting and streaming; Scripted replays canned responses for tests and
// offline runs.
package generate

import (
	"context"
	"errors"
)

// ErrEmptyPrompt is returned when Stream is called without a prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// ChunkFunc receives streamed text as it is produced. Returning an error
// stops the stream.
type ChunkFunc func(chunk string) error

// Model generates text for a prompt.
type Model interface {
	// Stream generates a response, passing chunks to onChunk as they
	// arrive, and returns the full text. onChunk may be nil.
	Stream(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error)
}

// Complete runs m without a chunk callback.
func Complete(ctx context.Context, m Model, prompt string) (string, error) {
	return m.Stream(ctx, prompt, nil)
}
