package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// ReplyInput is what a Responder knows about the turn it answers.
type ReplyInput struct {
	Message string
	Phase   skills.Skill
	Missing []provenance.Key
	Fields  map[provenance.Key]provenance.Field
	Outcome Outcome
	History []ChatMessage
}

// Responder writes the conversational reply for a turn in which no skill
// produced output.
type Responder interface {
	Respond(ctx context.Context, in ReplyInput, emit skills.Emit) (string, error)
}

// DefaultHistory is how many transcript messages a ModelResponder sends.
const DefaultHistory = 8

// ModelResponder streams a reply from a generative model.
type ModelResponder struct {
	model   generate.Model
	history int
}

// NewModelResponder creates a responder backed by model.
func NewModelResponder(model generate.Model) *ModelResponder {
	return &ModelResponder{model: model, history: DefaultHistory}
}

// SetHistory limits the transcript sent with each prompt to n messages.
// n <= 0 restores DefaultHistory.
func (r *ModelResponder) SetHistory(n int) {
	if n <= 0 {
		n = DefaultHistory
	}
	r.history = n
}

var replyPrompt = template.Must(template.New("reply").Funcs(template.FuncMap{
	"join":  joinKeys,
	"value": func(v any) string { return fmt.Sprint(v) },
}).Parse(`You are the project assistant for a website build.
Current phase: {{.Phase.DisplayName}}
{{- if .Phase.Constraint}}
Phase rules: {{.Phase.Constraint}}
{{- end}}
{{- if .Missing}}
Still needed from the user: {{join .Missing}}
{{- end}}
{{- if .Fields}}
Known project fields:
{{- range $k, $f := .Fields}}
- {{$k}}: {{value $f.Value}} ({{$f.Provenance}})
{{- end}}
{{- end}}
{{- if .Outcome.Refused}}
The last request could not be carried out: {{.Outcome.Reason}}
{{- end}}
{{- if .History}}

Conversation so far:
{{- range .History}}
{{.Role}}: {{.Content}}
{{- end}}
{{- end}}

User: {{.Message}}
Reply briefly and stay within the phase rules.`))

// Respond implements Responder.
func (r *ModelResponder) Respond(ctx context.Context, in ReplyInput, emit skills.Emit) (string, error) {
	if n := len(in.History); n > r.history {
		in.History = in.History[n-r.history:]
	}
	var b strings.Builder
	if err := replyPrompt.Execute(&b, in); err != nil {
		return "", fmt.Errorf("rendering reply prompt: %w", err)
	}
	return r.model.Stream(ctx, b.String(), func(chunk string) error {
		emit(chunk)
		return nil
	})
}

func joinKeys(keys []provenance.Key) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
