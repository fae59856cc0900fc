package orchestrator

import (
	"fmt"
	"strings"

	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// FragmentKind distinguishes ordinary text from control fragments
type FragmentKind string

const (
	FragmentText       FragmentKind = "text"
	FragmentCheckpoint FragmentKind = "checkpoint"
	FragmentError      FragmentKind = "error"
	FragmentState      FragmentKind = "state"
)

// StateMarker prefixes the serialized state in text transports.
const StateMarker = "|||STATE_UPDATE|||"

// Fragment is one unit of streamed output.
type Fragment struct {
	Kind  FragmentKind `json:"kind"`
	Text  string       `json:"text,omitempty"`
	Skill skills.ID    `json:"skill,omitempty"`

	// Gate names the checkpoint reached. Set on checkpoint fragments only.
	Gate string `json:"gate,omitempty"`
}

// CheckpointMarker renders the text token for a gate.
func CheckpointMarker(gate string) string {
	return fmt.Sprintf("\n\n[GATE_ACTION: %s]\n", gate)
}

// String renders f for a plain text stream.
func (f Fragment) String() string {
	switch f.Kind {
	case FragmentCheckpoint:
		return CheckpointMarker(f.Gate)
	case FragmentError:
		return fmt.Sprintf("\n[Error during %s: %s]", f.Skill, f.Text)
	case FragmentState:
		return StateMarker + f.Text
	default:
		return f.Text
	}
}

// Sink receives fragments in the order they are produced.
type Sink func(Fragment)

// Discard is a Sink that drops everything.
func Discard(Fragment) {}

// Collector accumulates fragments for inspection.
type Collector struct {
	Fragments []Fragment
}

// Sink returns a Sink appending to c.
func (c *Collector) Sink() Sink {
	return func(f Fragment) {
		c.Fragments = append(c.Fragments, f)
	}
}

// Text concatenates the text fragments.
func (c *Collector) Text() string {
	var b strings.Builder
	for _, f := range c.Fragments {
		if f.Kind == FragmentText {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

// Last returns the final fragment, if any.
func (c *Collector) Last() (Fragment, bool) {
	if len(c.Fragments) == 0 {
		return Fragment{}, false
	}
	return c.Fragments[len(c.Fragments)-1], true
}

// Kinds returns the kind of every fragment in order.
func (c *Collector) Kinds() []FragmentKind {
	kinds := make([]FragmentKind, len(c.Fragments))
	for i, f := range c.Fragments {
		kinds[i] = f.Kind
	}
	return kinds
}
