package skills

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/tidwall/gjson"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// IntakeRunner audits the project fields and writes the project brief.
// It does not call the model.
type IntakeRunner struct {
	Skill Skill
}

// Run implements Runner.
func (r *IntakeRunner) Run(_ context.Context, ws Workspace, _ string, emit Emit) error {
	missing := ws.RefreshMissing()

	var b strings.Builder
	b.WriteString("## Project brief\n")
	for _, k := range provenance.FieldKeys() {
		f, ok := ws.Field(k)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", k, formatValue(f.Value))
		if f.Provenance == provenance.Inferred {
			fmt.Fprintf(&b, " (inferred, %.0f%%)", f.Confidence*100)
		}
		b.WriteString("\n")
	}
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = string(k)
		}
		fmt.Fprintf(&b, "\nStill needed: %s\n", strings.Join(names, ", "))
		ws.AppendLog(fmt.Sprintf("Intake audit: missing %s", strings.Join(names, ", ")))
	} else {
		b.WriteString("\nAll required information is present.\n")
		ws.AppendLog("Intake audit: complete")
	}

	brief := b.String()
	emit(brief)
	if r.Skill.Artifact != "" {
		ws.SetArtifact(r.Skill.Artifact, brief, r.Skill.ID)
	}
	return nil
}

// DocumentRunner prompts the model for a document and stores it as the
// skill's artifact.
type DocumentRunner struct {
	Skill       Skill
	Model       generate.Model
	Instruction string
}

// Run implements Runner.
func (r *DocumentRunner) Run(ctx context.Context, ws Workspace, feedback string, emit Emit) error {
	text, err := r.generate(ctx, ws, feedback, emit)
	if err != nil || text == "" {
		return err
	}
	ws.SetArtifact(r.Skill.Artifact, text, r.Skill.ID)
	return nil
}

// generate streams the model output and returns the trimmed text. An
// empty result is logged on ws and is not an error.
func (r *DocumentRunner) generate(ctx context.Context, ws Workspace, feedback string, emit Emit) (string, error) {
	if r.Model == nil {
		return "", fmt.Errorf("%s: no model configured", r.Skill.ID)
	}
	prompt, err := buildPrompt(r.Skill, r.Instruction, ws, feedback)
	if err != nil {
		return "", fmt.Errorf("%s: building prompt: %w", r.Skill.ID, err)
	}

	text, err := r.Model.Stream(ctx, prompt, func(chunk string) error {
		emit(chunk)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.Skill.ID, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		ws.AppendLog(fmt.Sprintf("%s produced no output", r.Skill.DisplayName))
	}
	return text, nil
}

// ResearchRunner is a DocumentRunner whose output may end with a block of
// inferred project facts. Each fact is merged through the provenance rules.
type ResearchRunner struct {
	Document DocumentRunner
}

// Run implements Runner.
func (r *ResearchRunner) Run(ctx context.Context, ws Workspace, feedback string, emit Emit) error {
	text, err := r.Document.generate(ctx, ws, feedback, emit)
	if err != nil || text == "" {
		return err
	}

	report, block := splitInferred(text)
	accepted, offered := mergeInferred(ws, block, string(r.Document.Skill.ID))
	if offered > 0 {
		ws.AppendReasoning(r.Document.Skill.DisplayName,
			fmt.Sprintf("inferred %d of %d project fields from research", accepted, offered), 0.7)
	}
	ws.SetArtifact(r.Document.Skill.Artifact, report, r.Document.Skill.ID)
	return nil
}

// splitInferred separates a trailing {"inferred": ...} object from text.
func splitInferred(text string) (report, block string) {
	idx := strings.LastIndex(text, `"inferred"`)
	if idx < 0 {
		return text, ""
	}
	start := strings.LastIndex(text[:idx], "{")
	if start < 0 {
		return text, ""
	}
	candidate := strings.TrimSpace(text[start:])
	candidate = strings.TrimSpace(strings.TrimSuffix(candidate, "```"))
	if !gjson.Valid(candidate) {
		return text, ""
	}
	report = strings.TrimSpace(text[:start])
	report = strings.TrimSpace(strings.TrimSuffix(report, "```json"))
	return report, candidate
}

// mergeInferred merges every fact in block into ws and returns how many
// were accepted out of how many were offered.
func mergeInferred(ws Workspace, block, source string) (accepted, offered int) {
	if block == "" {
		return 0, 0
	}
	gjson.Get(block, "inferred").ForEach(func(key, value gjson.Result) bool {
		k := provenance.Key(key.String())
		if !provenance.IsField(k) {
			return true
		}
		v := value.Get("value")
		if !v.Exists() || v.String() == "" {
			return true
		}
		offered++
		rec := ws.Merge(k, provenance.Normalize(k, v.Value()),
			value.Get("confidence").Float(), source, value.Get("rationale").String())
		if rec.Accepted {
			accepted++
		}
		return true
	})
	return accepted, offered
}

var promptTemplate = template.Must(template.New("skill").Parse(`You are the {{.Name}} for a website project. {{.Description}}.

{{.Instruction}}

Project facts:
{{range .Facts}}- {{.Key}}: {{.Value}}{{if .Inferred}} (inferred){{end}}
{{else}}- none recorded yet
{{end}}
{{- range .Inputs}}
## {{.Key}}
{{.Content}}
{{end}}
{{- if .Feedback}}
Current version:
{{.Current}}

Revise it according to this feedback:
{{.Feedback}}
{{end}}`))

type promptFact struct {
	Key      provenance.Key
	Value    string
	Inferred bool
}

type promptInput struct {
	Key     provenance.Key
	Content string
}

func buildPrompt(s Skill, instruction string, ws Workspace, feedback string) (string, error) {
	data := struct {
		Name        string
		Description string
		Instruction string
		Facts       []promptFact
		Inputs      []promptInput
		Current     string
		Feedback    string
	}{
		Name:        s.DisplayName,
		Description: s.Description,
		Instruction: instruction,
		Feedback:    strings.TrimSpace(feedback),
	}

	for _, k := range provenance.FieldKeys() {
		if f, ok := ws.Field(k); ok {
			data.Facts = append(data.Facts, promptFact{
				Key:      k,
				Value:    formatValue(f.Value),
				Inferred: f.Provenance == provenance.Inferred,
			})
		}
	}
	for _, k := range provenance.ArtifactKeys() {
		if k == s.Artifact || k == provenance.KeyProjectBrief {
			continue
		}
		if content, ok := ws.Artifact(k); ok {
			data.Inputs = append(data.Inputs, promptInput{Key: k, Content: content})
		}
	}
	if current, ok := ws.Artifact(s.Artifact); ok {
		data.Current = current
	}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
