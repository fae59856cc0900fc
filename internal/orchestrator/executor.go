package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
	"github.com/andresmedinaorbidi/clarity/internal/telemetry"
)

const instrumentationName = "github.com/andresmedinaorbidi/clarity/internal/orchestrator"

// ErrSkillFailed wraps any error returned by a skill runner.
var ErrSkillFailed = errors.New("skill execution failed")

// StopReason explains why a chain ended
type StopReason string

const (
	// StopGate means a gate ran and a checkpoint was emitted.
	StopGate StopReason = "gate"

	// StopSoft means the successor does not auto execute.
	StopSoft StopReason = "soft_stop"

	// StopEnd means the last skill declares no successor, or a single
	// skill run finished without reaching a gate.
	StopEnd StopReason = "end"

	// StopUnknown means the chain reached an unregistered skill id.
	StopUnknown StopReason = "unknown_skill"

	// StopFailed means a skill returned an error.
	StopFailed StopReason = "failed"

	// StopLimit means the chain ran every registered skill once and was
	// cut off to avoid cycling through successor declarations.
	StopLimit StopReason = "limit"
)

// ChainResult describes a finished chain. It is returned only after every
// fragment has been delivered and every state change committed.
type ChainResult struct {
	Executed   []skills.ID `json:"executed"`
	Stop       StopReason  `json:"stop"`
	Checkpoint string      `json:"checkpoint,omitempty"`
	Next       skills.ID   `json:"next,omitempty"`
}

// Halted reports whether the chain stopped at a gate.
func (r ChainResult) Halted() bool {
	return r.Stop == StopGate
}

// Executor runs skills from a catalog against session state.
type Executor struct {
	catalog *skills.Catalog
	logger  *logging.Logger
	metrics *Metrics

	tracer      trace.Tracer
	meter       metric.Meter
	runCounter  metric.Int64Counter
	runDuration metric.Float64Histogram
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithTelemetry sends spans and metrics to t.
func WithTelemetry(t *telemetry.Telemetry) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t.Tracer(instrumentationName)
		e.meter = t.Meter(instrumentationName)
	}
}

// WithMetrics records Prometheus metrics on m.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an executor over catalog.
func NewExecutor(catalog *skills.Catalog, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		catalog: catalog,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initMetrics()
	return e
}

func (e *Executor) initMetrics() {
	var err error

	e.runCounter, err = e.meter.Int64Counter(
		"clarity.skill.runs_total",
		metric.WithDescription("Total number of skill executions"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create skill run counter", zap.Error(err))
	}

	e.runDuration, err = e.meter.Float64Histogram(
		"clarity.skill.duration_seconds",
		metric.WithDescription("Duration of skill executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create skill duration histogram", zap.Error(err))
	}
}

// Catalog returns the executor's catalog.
func (e *Executor) Catalog() *skills.Catalog {
	return e.catalog
}

// RunChain executes start and continues through auto-executing
// successors until a gate, a soft stop, the end of the pipeline, or a
// failure. A failure is returned wrapped in ErrSkillFailed after an error
// fragment has been emitted; state keeps whatever the failed skill wrote.
func (e *Executor) RunChain(ctx context.Context, st *State, start skills.ID, sink Sink) (ChainResult, error) {
	return e.run(ctx, st, start, "", true, sink)
}

// RunWithContinuation executes start with feedback, then applies the same
// continuation rules as RunChain. Only the first skill sees feedback.
func (e *Executor) RunWithContinuation(ctx context.Context, st *State, start skills.ID, feedback string, sink Sink) (ChainResult, error) {
	return e.run(ctx, st, start, feedback, true, sink)
}

// RunOnce executes a single skill with feedback. A gate still emits its
// checkpoint; successors are never entered.
func (e *Executor) RunOnce(ctx context.Context, st *State, id skills.ID, feedback string, sink Sink) (ChainResult, error) {
	return e.run(ctx, st, id, feedback, false, sink)
}

func (e *Executor) run(ctx context.Context, st *State, start skills.ID, feedback string, chain bool, sink Sink) (result ChainResult, err error) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.chain")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", st.ID),
		attribute.String("chain.start", string(start)),
		attribute.Bool("chain.continue", chain),
	)
	defer func() {
		e.metrics.chain(len(result.Executed))
		span.SetAttributes(
			attribute.String("chain.stop", string(result.Stop)),
			attribute.Int("chain.executed", len(result.Executed)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	current := start
	for {
		sk, ok := e.catalog.Get(current)
		if !ok {
			e.logger.Warn(ctx, "chain stopped at unknown skill", zap.String("skill", string(current)))
			st.AppendLog(fmt.Sprintf("System: Skill '%s' not found, chain stopped.", current))
			result.Stop = StopUnknown
			return result, nil
		}
		if len(result.Executed) >= e.catalog.Len() {
			e.logger.Warn(ctx, "chain length limit reached", zap.String("skill", string(current)))
			st.AppendLog(fmt.Sprintf("System: Chain stopped before %s after running every skill once.", sk.DisplayName))
			result.Stop = StopLimit
			result.Next = current
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			st.AppendLog(fmt.Sprintf("Error: Skill execution error (%s): %v", current, err))
			e.logger.Error(ctx, "chain interrupted", zap.String("skill", string(current)), zap.Error(err))
			sink(Fragment{Kind: FragmentError, Skill: current, Text: err.Error()})
			result.Stop = StopFailed
			return result, fmt.Errorf("%w: %s: chain interrupted: %w", ErrSkillFailed, current, err)
		}

		if err := e.execute(ctx, st, sk, feedback, sink); err != nil {
			result.Stop = StopFailed
			return result, err
		}
		feedback = ""
		result.Executed = append(result.Executed, sk.ID)

		if sk.IsGate() {
			gate := sk.Gate()
			sink(Fragment{Kind: FragmentCheckpoint, Skill: sk.ID, Gate: gate})
			st.AppendLog(fmt.Sprintf("System: Waiting for approval at %s.", gate))
			e.metrics.checkpoint(gate)
			result.Stop = StopGate
			result.Checkpoint = gate
			result.Next = sk.SuggestedNext
			return result, nil
		}

		next := sk.SuggestedNext
		if !chain || next == skills.None {
			result.Stop = StopEnd
			result.Next = next
			return result, nil
		}
		if succ, ok := e.catalog.Get(next); ok && !succ.AutoExecute {
			e.logger.Debug(ctx, "chain paused before manual skill", zap.String("skill", string(next)))
			st.AppendLog(fmt.Sprintf("System: Pausing before %s.", succ.DisplayName))
			result.Stop = StopSoft
			result.Next = next
			return result, nil
		}
		current = next
	}
}

// execute runs one skill: enter its phase, stream its output, record the
// outcome. Runner panics are reported as failures.
func (e *Executor) execute(ctx context.Context, st *State, sk skills.Skill, feedback string, sink Sink) error {
	ctx, span := e.tracer.Start(ctx, "skill.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("skill.id", string(sk.ID)),
		attribute.Bool("skill.gate", sk.IsGate()),
		attribute.Bool("skill.revision", feedback != ""),
	)

	runner, ok := e.catalog.Runner(sk.ID)
	if !ok {
		return fmt.Errorf("%w: %s: %w", ErrSkillFailed, sk.ID, skills.ErrUnknownSkill)
	}

	st.enter(sk.ID)
	st.AppendLog(fmt.Sprintf("System: Executing %s skill.", sk.DisplayName))
	e.logger.Info(ctx, "executing skill", zap.String("skill", string(sk.ID)), zap.Bool("revision", feedback != ""))
	sink(Fragment{Kind: FragmentText, Skill: sk.ID, Text: header(sk)})

	started := time.Now()
	runErr := safeRun(ctx, runner, st, feedback, func(text string) {
		if text != "" {
			sink(Fragment{Kind: FragmentText, Skill: sk.ID, Text: text})
		}
	})
	e.recordRun(ctx, sk.ID, runErr, time.Since(started))

	if runErr != nil {
		st.AppendLog(fmt.Sprintf("Error: Skill execution error (%s): %v", sk.ID, runErr))
		e.logger.Error(ctx, "skill failed", zap.String("skill", string(sk.ID)), zap.Error(runErr))
		sink(Fragment{Kind: FragmentError, Skill: sk.ID, Text: runErr.Error()})
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return fmt.Errorf("%w: %s: %w", ErrSkillFailed, sk.ID, runErr)
	}

	st.AppendLog(fmt.Sprintf("System: %s completed successfully.", sk.DisplayName))
	return nil
}

func (e *Executor) recordRun(ctx context.Context, id skills.ID, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("skill", string(id)),
		attribute.String("outcome", outcome),
	)
	if e.runCounter != nil {
		e.runCounter.Add(ctx, 1, attrs)
	}
	if e.runDuration != nil {
		e.runDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func safeRun(ctx context.Context, r skills.Runner, ws skills.Workspace, feedback string, emit skills.Emit) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Run(ctx, ws, feedback, emit)
}

func header(sk skills.Skill) string {
	if sk.Icon == "" {
		return fmt.Sprintf("**%s**\n\n", sk.DisplayName)
	}
	return fmt.Sprintf("%s **%s**\n\n", sk.Icon, sk.DisplayName)
}
