package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// routerActor names the dispatcher in the reasoning trail.
const routerActor = "Router"

// Predicate reports whether a session may leave its current phase.
type Predicate func(*State) bool

// DefaultPredicates returns the built-in predicates: intake may not be
// left while a required field is missing. Other phases have none.
//
// The intake check recomputes Missing from the ledger, since Fields can
// be written directly without a refresh.
func DefaultPredicates() map[skills.ID]Predicate {
	return map[skills.ID]Predicate{
		skills.Intake: func(s *State) bool { return len(s.RefreshMissing()) == 0 },
	}
}

// Outcome describes what a dispatch did.
type Outcome struct {
	Action  intent.Action `json:"action"`
	Refused bool          `json:"refused,omitempty"`
	Reason  string        `json:"reason,omitempty"`

	// Chain is set when skills ran.
	Chain *ChainResult `json:"chain,omitempty"`
}

// Ran reports whether any skill executed.
func (o Outcome) Ran() bool {
	return o.Chain != nil && len(o.Chain.Executed) > 0
}

// Dispatcher applies intent decisions to session state.
type Dispatcher struct {
	exec       *Executor
	catalog    *skills.Catalog
	predicates map[skills.ID]Predicate
	logger     *logging.Logger
	metrics    *Metrics
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithPredicates replaces the default predicates.
func WithPredicates(p map[skills.ID]Predicate) DispatcherOption {
	return func(d *Dispatcher) {
		d.predicates = p
	}
}

// WithDispatchMetrics records dispatch outcomes on m.
func WithDispatchMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher running skills through exec.
func NewDispatcher(exec *Executor, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		exec:       exec,
		catalog:    exec.Catalog(),
		predicates: DefaultPredicates(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies decision to st. Refusals are recorded in the session
// log and returned as an Outcome; the only error is a skill failure,
// which leaves whatever the failed skill wrote in st.
func (d *Dispatcher) Dispatch(ctx context.Context, st *State, decision intent.Decision, sink Sink) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch decision.Action {
	case intent.ActionInvoke:
		out, err = d.invoke(ctx, st, decision, sink)
	case intent.ActionRevise:
		out, err = d.revise(ctx, st, decision, sink)
	case intent.ActionProceed:
		out, err = d.proceed(ctx, st, decision, sink)
	case intent.ActionEdit:
		out = d.edit(ctx, st, decision)
	case intent.ActionFeedback:
		out = d.feedback(ctx, st, decision)
	default:
		out = Outcome{Action: intent.ActionChat}
		st.AppendReasoning(routerActor, "conversation only, no skill runs", decision.Certainty)
	}
	out.Action = decision.Action
	if out.Action == "" {
		out.Action = intent.ActionChat
	}

	switch {
	case err != nil:
		d.metrics.dispatched(out.Action, "failed")
	case out.Refused:
		d.metrics.dispatched(out.Action, "refused")
	case out.Ran():
		d.metrics.dispatched(out.Action, "executed")
	default:
		d.metrics.dispatched(out.Action, "recorded")
	}
	return out, err
}

func (d *Dispatcher) invoke(ctx context.Context, st *State, decision intent.Decision, sink Sink) (Outcome, error) {
	id := decision.RequestedSkill
	sk, ok := d.catalog.Get(id)
	if !ok {
		return d.refuse(ctx, st, decision, fmt.Sprintf("Skill '%s' not found.", id)), nil
	}
	if !sk.CanInvokeDirectly {
		return d.refuse(ctx, st, decision, fmt.Sprintf("%s cannot be invoked directly.", sk.DisplayName)), nil
	}

	missing := d.catalog.MissingPrerequisites(id, func(p skills.ID) bool {
		return st.HasOutput(d.catalog, p)
	})
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		st.AppendLog(fmt.Sprintf("Warning: %s is running without %s.", sk.DisplayName, strings.Join(names, ", ")))
		d.logger.Warn(ctx, "invoking skill with missing prerequisites",
			zap.String("skill", string(id)),
			zap.Strings("missing", names))
	}

	st.AppendReasoning(routerActor, fmt.Sprintf("invoking %s directly", id), decision.Certainty)
	res, err := d.exec.RunWithContinuation(ctx, st, id, decision.RevisionFeedback, sink)
	return Outcome{Chain: &res}, err
}

func (d *Dispatcher) revise(ctx context.Context, st *State, decision intent.Decision, sink Sink) (Outcome, error) {
	id := decision.RequestedSkill
	if id == skills.None {
		id = st.Phase()
	}
	sk, ok := d.catalog.Get(id)
	if !ok {
		return d.refuse(ctx, st, decision, fmt.Sprintf("Skill '%s' not found.", id)), nil
	}
	if !sk.RevisionSupported {
		return d.refuse(ctx, st, decision, fmt.Sprintf("%s does not support revisions.", sk.DisplayName)), nil
	}

	st.AppendReasoning(routerActor, fmt.Sprintf("revising %s with feedback", id), decision.Certainty)
	res, err := d.exec.RunOnce(ctx, st, id, decision.RevisionFeedback, sink)
	return Outcome{Chain: &res}, err
}

func (d *Dispatcher) proceed(ctx context.Context, st *State, decision intent.Decision, sink Sink) (Outcome, error) {
	current := st.Phase()
	if pred, ok := d.predicates[current]; ok && !pred(st) {
		reason := fmt.Sprintf("Cannot leave %s yet.", current)
		if missing := st.Missing(); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, m := range missing {
				names[i] = string(m)
			}
			reason = fmt.Sprintf("Cannot leave %s yet, missing required fields: %s.", current, strings.Join(names, ", "))
		}
		return d.refuse(ctx, st, decision, reason), nil
	}

	next := ResolveNext(d.catalog, current, intent.ActionProceed, decision.NaturalNextStep)
	if next == skills.None {
		return d.refuse(ctx, st, decision, fmt.Sprintf("Nothing follows %s.", current)), nil
	}

	st.AppendReasoning(routerActor, fmt.Sprintf("proceeding from %s to %s", current, next), decision.Certainty)
	res, err := d.exec.RunChain(ctx, st, next, sink)
	return Outcome{Chain: &res}, err
}

func (d *Dispatcher) edit(ctx context.Context, st *State, decision intent.Decision) Outcome {
	owner := decision.RequestedSkill
	if owner == skills.None {
		owner = st.Phase()
	}
	if owner != st.Phase() {
		return d.refuse(ctx, st, decision, fmt.Sprintf("Edit refused: %s is not the active phase.", owner))
	}
	sk, ok := d.catalog.Get(owner)
	if !ok || sk.Artifact == "" {
		return d.refuse(ctx, st, decision, fmt.Sprintf("Edit refused: %s has no editable output.", owner))
	}

	content := decision.RevisionFeedback
	if v, ok := decision.Updates[string(sk.Artifact)].(string); ok && v != "" {
		content = v
	}
	if strings.TrimSpace(content) == "" {
		return d.refuse(ctx, st, decision, "Edit refused: no content provided.")
	}

	st.editArtifact(sk.Artifact, content, owner)
	st.AppendLog(fmt.Sprintf("User: Edited %s.", sk.Artifact))
	st.AppendReasoning(routerActor, fmt.Sprintf("applied user edit to %s", sk.Artifact), decision.Certainty)
	d.logger.Info(ctx, "artifact edited", zap.String("artifact", string(sk.Artifact)))
	return Outcome{}
}

func (d *Dispatcher) feedback(ctx context.Context, st *State, decision intent.Decision) Outcome {
	text := strings.TrimSpace(decision.RevisionFeedback)
	if text == "" {
		st.AppendReasoning(routerActor, "feedback without content, nothing recorded", decision.Certainty)
		return Outcome{}
	}
	st.Feedback = append(st.Feedback, text)
	st.AppendLog(fmt.Sprintf("User: Feedback recorded for %s.", st.Phase()))
	st.AppendReasoning(routerActor, "recorded user feedback", decision.Certainty)
	d.logger.Debug(ctx, "feedback recorded", zap.Int("total", len(st.Feedback)))
	return Outcome{}
}

func (d *Dispatcher) refuse(ctx context.Context, st *State, decision intent.Decision, reason string) Outcome {
	st.AppendLog("System: " + reason)
	st.AppendReasoning(routerActor, "refused: "+reason, decision.Certainty)
	d.logger.Info(ctx, "dispatch refused",
		zap.String("action", string(decision.Action)),
		zap.String("phase", string(st.Phase())),
		zap.String("reason", reason))
	return Outcome{Refused: true, Reason: reason}
}

