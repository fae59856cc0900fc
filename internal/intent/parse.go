package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// ErrMalformed is returned when model output is not a JSON object.
var ErrMalformed = errors.New("malformed decision")

// ParseDecision reads a decision from raw model output. Markdown code
// fences around the JSON are tolerated. Missing fields take defaults; a
// requested skill of "none" is treated as absent.
func ParseDecision(raw string) (Decision, error) {
	body := stripFences(raw)
	if body == "" {
		return Decision{}, fmt.Errorf("%w: empty output", ErrMalformed)
	}
	if !gjson.Valid(body) {
		return Decision{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return Decision{}, fmt.Errorf("%w: expected an object", ErrMalformed)
	}

	d := Decision{
		Action:           ParseAction(root.Get("action").String()),
		RequestedSkill:   skillID(root.Get("requested_skill").String()),
		NaturalNextStep:  skillID(root.Get("natural_next_step").String()),
		RevisionFeedback: root.Get("revision_feedback").String(),
		Updates:          map[string]any{},
		Certainty:        DefaultCertainty,
		Thought:          root.Get("reasoning").String(),
	}

	if c := root.Get("certainty"); c.Exists() && c.Type == gjson.Number {
		d.Certainty = c.Float()
	}
	if updates := root.Get("updates"); updates.IsObject() {
		updates.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Null {
				d.Updates[key.String()] = value.Value()
			}
			return true
		})
	}
	root.Get("assumptions").ForEach(func(_, value gjson.Result) bool {
		if s := strings.TrimSpace(value.String()); s != "" {
			d.Assumptions = append(d.Assumptions, s)
		}
		return true
	})

	return d, nil
}

func skillID(raw string) skills.ID {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "none" || s == "null" {
		return skills.None
	}
	return skills.ID(s)
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 2 {
		return s
	}
	inner := strings.TrimSpace(parts[1])
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}
