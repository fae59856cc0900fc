package skills

import (
	"context"

	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// Emit receives text fragments produced by a runner, in order.
type Emit func(text string)

// Runner executes a skill against a session workspace.
//
// Runners stream text through emit and record results on ws. When a runner
// cannot produce a result it logs that on ws and returns nil; an error is
// reserved for failures the chain must stop on.
type Runner interface {
	Run(ctx context.Context, ws Workspace, feedback string, emit Emit) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, ws Workspace, feedback string, emit Emit) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, ws Workspace, feedback string, emit Emit) error {
	return f(ctx, ws, feedback, emit)
}

// Workspace is the part of session state a runner may touch. The phase is
// readable but not settable; only the chain executor moves it.
type Workspace interface {
	// Phase returns the skill currently running.
	Phase() ID

	// Field returns a tracked project field.
	Field(k provenance.Key) (provenance.Field, bool)

	// Merge offers an inferred value through the provenance rules.
	Merge(k provenance.Key, value any, confidence float64, source, rationale string) provenance.MergeRecord

	// Artifact returns the current content of an artifact.
	Artifact(k provenance.Key) (string, bool)

	// SetArtifact stores skill output, replacing any earlier revision.
	SetArtifact(k provenance.Key, content string, by ID)

	// Missing returns required fields that are still unresolved.
	Missing() []provenance.Key

	// RefreshMissing recomputes Missing against the required fields.
	RefreshMissing() []provenance.Key

	AppendLog(msg string)
	AppendReasoning(actor, thought string, certainty float64)
}
