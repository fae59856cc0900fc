// Package intent defines the structured decision produced for each user
// message and the classifiers that produce it.
//
// Classification itself is delegated to a model. This package owns the
// decision shape, its parsing from model output, and the guarantee that a
// caller always receives a usable decision.
package intent

import (
	"strings"

	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// Action is what the dispatcher should do with a message.
type Action string

const (
	// ActionChat answers conversationally without running skills.
	ActionChat Action = "CHAT"

	// ActionInvoke runs a requested skill out of the normal order.
	ActionInvoke Action = "INVOKE"

	// ActionRevise reruns a skill with feedback.
	ActionRevise Action = "REVISE"

	// ActionProceed approves the current phase and advances the pipeline.
	ActionProceed Action = "PROCEED"

	// ActionEdit replaces the artifact owned by the current phase.
	ActionEdit Action = "EDIT"

	// ActionFeedback records free-form feedback.
	ActionFeedback Action = "FEEDBACK"
)

// Actions returns every known action.
func Actions() []Action {
	return []Action{ActionChat, ActionInvoke, ActionRevise, ActionProceed, ActionEdit, ActionFeedback}
}

// ParseAction normalizes raw. Unknown values map to ActionChat.
func ParseAction(raw string) Action {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Actions() {
		if a == known {
			return a
		}
	}
	return ActionChat
}

// DefaultCertainty is used when the classifier reports none.
const DefaultCertainty = 0.8

// Decision is the structured result of classifying one message.
type Decision struct {
	Action           Action         `json:"action"`
	RequestedSkill   skills.ID      `json:"requested_skill,omitempty"`
	NaturalNextStep  skills.ID      `json:"natural_next_step,omitempty"`
	RevisionFeedback string         `json:"revision_feedback,omitempty"`
	Updates          map[string]any `json:"updates,omitempty"`

	// Assumptions lists the Updates keys the classifier is unsure about.
	Assumptions []string `json:"assumptions,omitempty"`

	// Certainty is confidence in the decision itself. It feeds the
	// reasoning trail, not field merging.
	Certainty float64 `json:"certainty"`
	Thought   string  `json:"reasoning,omitempty"`
}

// Chat returns the no-op decision used when classification fails.
func Chat(thought string) Decision {
	return Decision{
		Action:    ActionChat,
		Updates:   map[string]any{},
		Certainty: DefaultCertainty,
		Thought:   thought,
	}
}

// IsAssumption reports whether key is marked as an assumption.
func (d Decision) IsAssumption(key string) bool {
	for _, a := range d.Assumptions {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(key)) {
			return true
		}
	}
	return false
}
