package orchestrator

import (
	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// hardJumps override a skill's declared successor when proceeding.
var hardJumps = map[skills.ID]skills.ID{
	skills.Intake:   skills.Research,
	skills.Research: skills.Strategy,
	skills.Planning: skills.SEO,
}

// ResolveNext returns the phase to enter for action taken at current.
//
// Non-PROCEED actions return explicit unchanged. PROCEED follows the hard
// jump table, then explicit, then the catalog's linear order. It returns
// skills.None when there is nowhere to go.
func ResolveNext(catalog *skills.Catalog, current skills.ID, action intent.Action, explicit skills.ID) skills.ID {
	if action != intent.ActionProceed {
		return explicit
	}
	if next, ok := hardJumps[current]; ok {
		return next
	}
	if explicit != skills.None {
		return explicit
	}
	return catalog.NextInLinearOrder(current)
}
