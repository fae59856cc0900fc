// Package skills defines the units of generative work a session moves
// through and the catalog that orders them.
//
// A Skill is pure metadata: identity, ordering, approval and invocation
// rules. Its behavior lives in a Runner registered alongside it. The
// catalog is built once at startup and shared read-only by all sessions.
package skills

import (
	"strings"

	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// ID identifies a skill. The session's phase is always a skill ID.
type ID string

// None is the zero ID, used where no skill applies.
const None ID = ""

const (
	Intake      ID = "intake"
	Research    ID = "research"
	Strategy    ID = "strategy"
	UX          ID = "ux"
	Planning    ID = "planning"
	SEO         ID = "seo"
	Copywriting ID = "copywriting"
	PRD         ID = "prd"
	Building    ID = "building"
)

// NominalPhases returns the default linear phase order.
func NominalPhases() []ID {
	return []ID{Intake, Research, Strategy, UX, Planning, SEO, Copywriting, PRD, Building}
}

// Skill describes one registered unit of work.
type Skill struct {
	ID          ID     `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`

	// TriggerPhrases are matched as case-insensitive substrings.
	TriggerPhrases []string `json:"trigger_phrases,omitempty" yaml:"trigger_phrases,omitempty"`

	CanInvokeDirectly bool `json:"can_invoke_directly" yaml:"can_invoke_directly"`

	// RequiresApproval marks a gate: a chain halts after running it.
	RequiresApproval bool `json:"requires_approval" yaml:"requires_approval"`

	// AutoExecute lets a chain continue into this skill when it is the
	// successor of the skill that just ran.
	AutoExecute bool `json:"auto_execute" yaml:"auto_execute"`

	SuggestedNext     ID   `json:"suggested_next,omitempty" yaml:"suggested_next,omitempty"`
	Prerequisites     []ID `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	RevisionSupported bool `json:"revision_supported" yaml:"revision_supported"`

	// GateName labels the checkpoint emitted after a gate.
	GateName string `json:"gate_name,omitempty" yaml:"gate_name,omitempty"`

	// Artifact is the output this skill owns, if any.
	Artifact provenance.Key `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// Constraint tells the conversational responder what may be discussed
	// while the session sits in this phase.
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// IsGate reports whether the skill requires approval.
func (s Skill) IsGate() bool {
	return s.RequiresApproval
}

// Gate returns the checkpoint label for the skill.
func (s Skill) Gate() string {
	if s.GateName != "" {
		return s.GateName
	}
	return strings.ReplaceAll(strings.ToUpper(string(s.ID)), " ", "_")
}
