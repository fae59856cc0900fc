package generate

import (
	"context"
	"strings"
	"sync"
)

// Scripted is a Model that replays queued responses. When the queue is
// empty it echoes a short acknowledgement so offline runs still produce
// output.
type Scripted struct {
	mu        sync.Mutex
	responses []scriptedResponse
	prompts   []string
}

type scriptedResponse struct {
	text string
	err  error
}

// NewScripted creates a Scripted model with no queued responses.
func NewScripted(responses ...string) *Scripted {
	s := &Scripted{}
	for _, r := range responses {
		s.Push(r)
	}
	return s
}

// Push queues a response.
func (s *Scripted) Push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{text: text})
}

// Fail queues an error.
func (s *Scripted) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{err: err})
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Stream implements Model. Queued text is delivered word by word.
func (s *Scripted) Stream(ctx context.Context, prompt string, onChunk ChunkFunc) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	var next scriptedResponse
	if len(s.responses) > 0 {
		next = s.responses[0]
		s.responses = s.responses[1:]
	} else {
		next = scriptedResponse{text: "Noted. " + firstLine(prompt)}
	}
	s.mu.Unlock()

	if next.err != nil {
		return "", next.err
	}
	if onChunk != nil {
		for _, chunk := range splitKeep(next.text) {
			if err := onChunk(chunk); err != nil {
				return "", err
			}
		}
	}
	return next.text, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// splitKeep splits s after each space so that joining the chunks yields s.
func splitKeep(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}
