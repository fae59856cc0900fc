package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// View is the read-only slice of session state a classifier sees.
type View struct {
	Phase     skills.ID
	Missing   []provenance.Key
	Fields    map[provenance.Key]provenance.Field
	Artifacts []provenance.Key
	Skills    []skills.Skill
}

// Classifier turns a message into a Decision.
type Classifier interface {
	Classify(ctx context.Context, view View, message string) (Decision, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, view View, message string) (Decision, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, view View, message string) (Decision, error) {
	return f(ctx, view, message)
}

// SafeClassifier wraps a Classifier so that Classify never fails. Errors,
// including parse failures, become a CHAT decision.
type SafeClassifier struct {
	inner  Classifier
	logger *logging.Logger
}

// Safe wraps c.
func Safe(c Classifier, logger *logging.Logger) *SafeClassifier {
	return &SafeClassifier{inner: c, logger: logger}
}

// Classify implements Classifier. The returned error is always nil.
func (s *SafeClassifier) Classify(ctx context.Context, view View, message string) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "classifier panicked", zap.Any("panic", r))
			d, err = Chat("classification failed"), nil
		}
	}()

	d, err = s.inner.Classify(ctx, view, message)
	if err != nil {
		s.logger.Warn(ctx, "classification failed, falling back to chat", zap.Error(err))
		return Chat("classification failed"), nil
	}
	if d.Updates == nil {
		d.Updates = map[string]any{}
	}
	d.Action = ParseAction(string(d.Action))
	return d, nil
}

// FallbackClassifier tries Primary and consults Secondary only when
// Primary fails.
type FallbackClassifier struct {
	Primary   Classifier
	Secondary Classifier
}

// Fallback returns a classifier that uses secondary when primary errors.
func Fallback(primary, secondary Classifier) *FallbackClassifier {
	return &FallbackClassifier{Primary: primary, Secondary: secondary}
}

// Classify implements Classifier.
func (f *FallbackClassifier) Classify(ctx context.Context, view View, message string) (Decision, error) {
	d, err := f.Primary.Classify(ctx, view, message)
	if err == nil {
		return d, nil
	}
	d, err2 := f.Secondary.Classify(ctx, view, message)
	if err2 != nil {
		return Decision{}, errors.Join(err, err2)
	}
	return d, nil
}

// ModelClassifier asks a generative model for a JSON decision.
type ModelClassifier struct {
	model generate.Model
}

// NewModelClassifier creates a classifier backed by model.
func NewModelClassifier(model generate.Model) *ModelClassifier {
	return &ModelClassifier{model: model}
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, view View, message string) (Decision, error) {
	prompt, err := classifierPrompt(view, message)
	if err != nil {
		return Decision{}, fmt.Errorf("building classifier prompt: %w", err)
	}
	raw, err := generate.Complete(ctx, c.model, prompt)
	if err != nil {
		return Decision{}, fmt.Errorf("classifying message: %w", err)
	}
	return ParseDecision(raw)
}

var classifierTemplate = template.Must(template.New("router").Parse(`You route messages for a website-building assistant.
Current phase: {{.Phase}}
Missing required fields: {{if .Missing}}{{range $i, $k := .Missing}}{{if $i}}, {{end}}{{$k}}{{end}}{{else}}none{{end}}
Known fields:
{{range $k, $f := .Fields}}- {{$k}} ({{$f.Provenance}})
{{else}}- none
{{end}}Produced artifacts: {{if .Artifacts}}{{range $i, $k := .Artifacts}}{{if $i}}, {{end}}{{$k}}{{end}}{{else}}none{{end}}

Skills:
{{range .Skills}}- {{.ID}}: {{.DisplayName}}. {{.Description}}{{if not .CanInvokeDirectly}} (not directly invocable){{end}}
{{end}}
Reply with one JSON object:
{"action": "CHAT|INVOKE|REVISE|PROCEED|EDIT|FEEDBACK", "requested_skill": "<id or none>",
 "natural_next_step": "<id or null>", "revision_feedback": "", "updates": {}, "assumptions": [],
 "certainty": 0.0, "reasoning": ""}
Use PROCEED when the user approves the current step. Put any project facts the user mentions in updates,
and list in assumptions the update keys you guessed rather than read.

User message:
{{.Message}}
`))

func classifierPrompt(view View, message string) (string, error) {
	data := struct {
		View
		Message string
	}{View: view, Message: message}
	var b strings.Builder
	if err := classifierTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// KeywordClassifier decides from fixed phrases and skill triggers. It is
// used when no model is configured.
type KeywordClassifier struct {
	catalog *skills.Catalog
}

// NewKeywordClassifier creates a classifier over catalog's triggers.
func NewKeywordClassifier(catalog *skills.Catalog) *KeywordClassifier {
	return &KeywordClassifier{catalog: catalog}
}

var (
	approvePhrases = []string{"proceed", "approve", "looks good", "go ahead", "continue", "next step"}
	revisePhrases  = []string{"revise", "change", "redo", "rewrite", "update the"}
)

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(_ context.Context, view View, message string) (Decision, error) {
	msg := strings.ToLower(message)
	d := Chat("no routing keywords found")

	switch {
	case containsAny(msg, revisePhrases):
		d.Action = ActionRevise
		d.RevisionFeedback = strings.TrimSpace(message)
		if s, ok := c.catalog.MatchTrigger(msg); ok {
			d.RequestedSkill = s.ID
		}
		d.Thought = "message asks for changes"
	case containsAny(msg, approvePhrases):
		d.Action = ActionProceed
		d.Thought = fmt.Sprintf("user approved %s", view.Phase)
	default:
		if s, ok := c.catalog.MatchTrigger(msg); ok && s.CanInvokeDirectly {
			d.Action = ActionInvoke
			d.RequestedSkill = s.ID
			d.Thought = fmt.Sprintf("message mentions %s", s.DisplayName)
		}
	}
	return d, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
