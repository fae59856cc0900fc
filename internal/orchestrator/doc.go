// Package orchestrator runs a session through the skill pipeline.
//
// # Overview
//
// Each inbound message is classified into an intent decision, the
// decision is dispatched, and dispatch runs zero or more skills through the
// chain executor. Skills stream text fragments to the caller and record
// their results on the session state.
//
// # Architecture
//
// The nominal pipeline is:
//
//	Intake → Research → Strategy → UX → Planning → SEO → Copywriting → PRD → Building
//
// Gates (intake, strategy, planning, copywriting) halt a chain after they
// run and emit a checkpoint fragment. A successor that does not auto
// execute (building) halts a chain before it runs.
//
// # Key Components
//
// ## State
//
// State is owned by one session. Its phase is unexported: only the
// Executor moves it, after ResolveNext or a dispatch rule picks the skill
// to enter.
//
// ## ResolveNext
//
// A pure function mapping (phase, action, explicit target) to the next
// phase, with a small table of hard jumps for PROCEED.
//
// ## Executor
//
// RunChain executes a skill, forwards its fragments, and decides whether
// to continue. It returns a ChainResult once every fragment has been
// delivered and every state change committed.
//
// ## Dispatcher
//
// Dispatch applies one decision: INVOKE, REVISE, PROCEED, EDIT, FEEDBACK
// or CHAT. PROCEED consults a per-phase Predicate before advancing.
//
// ## Engine
//
// HandleMessage is the full turn: classify, apply field updates, audit
// intake, dispatch, reply, and emit the final state.
//
// # Usage Example
//
//	catalog, _ := skills.NewDefaultCatalog(model)
//	exec := orchestrator.NewExecutor(catalog, logger)
//	engine := orchestrator.NewEngine(catalog, exec, classifier, logger)
//
//	state := orchestrator.NewState(provenance.KeyAudience, provenance.KeyOffer)
//	result, err := engine.HandleMessage(ctx, state, "we run a bakery", func(f orchestrator.Fragment) {
//	    fmt.Print(f.String())
//	})
package orchestrator
