package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/secrets"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

const (
	classifierActor = "Classifier"

	// assumptionSource tags values written through the assumption path.
	assumptionSource = "conversation"
)

// TurnResult summarizes one handled message.
type TurnResult struct {
	Decision intent.Decision          `json:"decision"`
	Outcome  Outcome                  `json:"outcome"`
	Updates  []provenance.MergeRecord `json:"updates,omitempty"`
	Reply    string                   `json:"reply,omitempty"`
}

// Engine handles complete message turns for a session.
type Engine struct {
	catalog    *skills.Catalog
	exec       *Executor
	dispatcher *Dispatcher
	classifier intent.Classifier
	responder  Responder
	aliases    *provenance.AliasTable
	redactor   *secrets.Redactor
	logger     *logging.Logger
	metrics    *Metrics
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithResponder streams a conversational reply on turns where no skill ran.
func WithResponder(r Responder) EngineOption {
	return func(e *Engine) {
		e.responder = r
	}
}

// WithAliases replaces the default alias table.
func WithAliases(t *provenance.AliasTable) EngineOption {
	return func(e *Engine) {
		e.aliases = t
	}
}

// WithRedactor removes secrets from messages before anything else sees them.
func WithRedactor(r *secrets.Redactor) EngineOption {
	return func(e *Engine) {
		e.redactor = r
	}
}

// WithDispatcher replaces the engine's dispatcher.
func WithDispatcher(d *Dispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithEngineMetrics records field writes on m.
func WithEngineMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine. The classifier is wrapped with intent.Safe.
func NewEngine(catalog *skills.Catalog, exec *Executor, classifier intent.Classifier, logger *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:    catalog,
		exec:       exec,
		classifier: intent.Safe(classifier, logger),
		aliases:    provenance.MustAliasTable(provenance.DefaultAliases()),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDispatcher(exec, logger, WithDispatchMetrics(e.metrics))
	}
	return e
}

// HandleMessage runs one turn: classify message, apply field updates,
// audit intake, dispatch, reply, and finally emit a state fragment.
//
// The state fragment is emitted even when a skill fails, so a transport
// can persist and show the partial result before reporting the error.
func (e *Engine) HandleMessage(ctx context.Context, st *State, message string, sink Sink) (TurnResult, error) {
	ctx = logging.WithSessionID(ctx, st.ID)
	ctx = logging.WithPhase(ctx, string(st.Phase()))

	if redacted := e.redactor.Redact(message); redacted.Redacted() {
		message = redacted.Text
		e.logger.Warn(ctx, "secrets redacted from message", zap.Strings("rules", redacted.RuleIDs()))
	}
	st.AppendTranscript(RoleUser, message)

	decision, err := e.classifier.Classify(ctx, st.View(e.catalog), message)
	if err != nil {
		e.logger.Warn(ctx, "classification failed, treating message as chat", zap.Error(err))
		decision = intent.Chat("classification failed")
	}
	thought := decision.Thought
	if thought == "" {
		thought = fmt.Sprintf("classified as %s", decision.Action)
	}
	st.AppendReasoning(classifierActor, thought, decision.Certainty)
	e.logger.Debug(ctx, "message classified",
		zap.String("action", string(decision.Action)),
		zap.String("requested_skill", string(decision.RequestedSkill)),
		zap.Float64("certainty", decision.Certainty))

	result := TurnResult{Decision: decision}
	result.Updates = e.ApplyUpdates(ctx, st, decision)

	if st.Phase() == skills.Intake {
		st.RefreshMissing()
	}
	if decision.Action == intent.ActionFeedback && decision.RevisionFeedback == "" {
		decision.RevisionFeedback = message
	}

	out, err := e.dispatcher.Dispatch(ctx, st, decision, sink)
	result.Outcome = out
	if err != nil {
		e.emitState(ctx, st, sink)
		return result, err
	}

	if err := e.auditIntake(ctx, st, &result, len(result.Updates) > 0, sink); err != nil {
		e.emitState(ctx, st, sink)
		return result, err
	}

	if e.responder != nil && !result.Outcome.Ran() {
		result.Reply = e.reply(ctx, st, message, result.Outcome, sink)
	}

	if err := e.emitState(ctx, st, sink); err != nil {
		return result, err
	}
	return result, nil
}

// auditIntake runs the intake skill while the session is still in intake
// and every required field is resolved, so that the brief is refreshed
// and the intake checkpoint is offered. Without new updates the existing
// brief is kept and only the checkpoint is repeated.
func (e *Engine) auditIntake(ctx context.Context, st *State, result *TurnResult, updated bool, sink Sink) error {
	if st.Phase() != skills.Intake || len(st.Missing()) > 0 || result.Outcome.Chain != nil {
		return nil
	}
	sk, ok := e.catalog.Get(skills.Intake)
	if !ok {
		return nil
	}

	if _, have := st.Artifacts[sk.Artifact]; have && !updated {
		sink(Fragment{Kind: FragmentCheckpoint, Skill: sk.ID, Gate: sk.Gate()})
		e.metrics.checkpoint(sk.Gate())
		return nil
	}

	res, err := e.exec.RunOnce(ctx, st, skills.Intake, "", sink)
	result.Outcome.Chain = &res
	return err
}

func (e *Engine) reply(ctx context.Context, st *State, message string, out Outcome, sink Sink) string {
	phase, _ := e.catalog.Get(st.Phase())
	in := ReplyInput{
		Message: message,
		Phase:   phase,
		Missing: st.Missing(),
		Fields:  st.Fields.Snapshot(),
		Outcome: out,
		History: st.Transcript[:len(st.Transcript)-1],
	}

	text, err := e.responder.Respond(ctx, in, func(chunk string) {
		if chunk != "" {
			sink(Fragment{Kind: FragmentText, Text: chunk})
		}
	})
	if err != nil {
		e.logger.Warn(ctx, "reply generation failed", zap.Error(err))
		st.AppendLog(fmt.Sprintf("Error: Reply generation failed: %v", err))
		return ""
	}
	if text != "" {
		st.AppendTranscript(RoleAssistant, text)
	}
	return text
}

// ApplyUpdates writes decision.Updates to the ledger. Keys named in
// decision.Assumptions take the assumption path; everything else is a
// user-sourced write. Unknown keys are dropped and artifact keys are left
// to the EDIT action.
func (e *Engine) ApplyUpdates(ctx context.Context, st *State, decision intent.Decision) []provenance.MergeRecord {
	if len(decision.Updates) == 0 {
		return nil
	}

	raw := make([]string, 0, len(decision.Updates))
	for k := range decision.Updates {
		raw = append(raw, k)
	}
	sort.Strings(raw)

	var records []provenance.MergeRecord
	for _, name := range raw {
		key, ok := e.aliases.Canonicalize(name)
		if !ok {
			e.logger.Warn(ctx, "dropping update for unknown field", zap.String("field", name))
			continue
		}
		if !provenance.IsField(key) {
			continue
		}
		value := provenance.Normalize(key, decision.Updates[name])

		if decision.IsAssumption(name) || decision.IsAssumption(string(key)) {
			rec := st.Fields.Assume(key, value, assumptionSource, provenance.DefaultAssumptionConfidence)
			e.metrics.fieldWrite("assume", rec)
			if rec.Accepted {
				st.AppendLog(fmt.Sprintf("System: Assumed %s.", key))
			}
			records = append(records, rec)
			continue
		}

		prev, _ := st.Fields.Get(key)
		st.Fields.SetUser(key, value)
		rec := provenance.MergeRecord{
			Field:         key,
			OldConfidence: prev.Confidence,
			NewConfidence: 1,
			Accepted:      true,
		}
		e.metrics.fieldWrite("user", rec)
		st.AppendLog(fmt.Sprintf("User: Set %s.", key))
		records = append(records, rec)
	}
	if len(records) > 0 {
		st.touch()
	}
	return records
}

// UpdateField stores a user-provided value for key. It backs direct
// field edits from the sessions API.
func (e *Engine) UpdateField(ctx context.Context, st *State, name string, value any) (provenance.Key, error) {
	key, ok := e.aliases.Canonicalize(name)
	if !ok || !provenance.IsField(key) {
		return "", fmt.Errorf("%w: %s", provenance.ErrUnknownField, name)
	}
	st.Fields.SetUser(key, provenance.Normalize(key, value))
	e.metrics.fieldWrite("user", provenance.MergeRecord{Field: key, NewConfidence: 1, Accepted: true})
	st.AppendLog(fmt.Sprintf("User: Set %s.", key))
	st.RefreshMissing()
	e.logger.Info(ctx, "field updated by user", zap.String("field", string(key)))
	return key, nil
}

// ResetField removes a user override for key. It reports whether one
// existed.
func (e *Engine) ResetField(ctx context.Context, st *State, name string) (bool, error) {
	key, ok := e.aliases.Canonicalize(name)
	if !ok || !provenance.IsField(key) {
		return false, fmt.Errorf("%w: %s", provenance.ErrUnknownField, name)
	}
	if !st.Fields.Reset(key) {
		return false, nil
	}
	st.AppendLog(fmt.Sprintf("User: Reset %s.", key))
	st.RefreshMissing()
	st.touch()
	e.logger.Info(ctx, "user override reset", zap.String("field", string(key)))
	return true, nil
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *skills.Catalog {
	return e.catalog
}

func (e *Engine) emitState(ctx context.Context, st *State, sink Sink) error {
	data, err := json.Marshal(st)
	if err != nil {
		e.logger.Error(ctx, "encoding session state", zap.Error(err))
		return fmt.Errorf("encoding session state: %w", err)
	}
	sink(Fragment{Kind: FragmentState, Text: string(data)})
	return nil
}
