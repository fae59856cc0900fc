package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
	"github.com/andresmedinaorbidi/clarity/internal/telemetry"
)

// echoRunner emits a line and stores "<id> output" as the artifact.
func echoRunner(s skills.Skill) skills.Runner {
	return skills.RunnerFunc(func(_ context.Context, ws skills.Workspace, feedback string, emit skills.Emit) error {
		emit(string(s.ID) + " done")
		if s.Artifact != "" {
			content := string(s.ID) + " output"
			if feedback != "" {
				content += " (" + feedback + ")"
			}
			ws.SetArtifact(s.Artifact, content, s.ID)
		}
		return nil
	})
}

// stubCatalog registers the default definitions with echo runners,
// replacing any runner named in overrides.
func stubCatalog(t *testing.T, overrides map[skills.ID]skills.Runner) *skills.Catalog {
	t.Helper()
	c := skills.NewCatalog(skills.NominalPhases())
	for _, s := range skills.Definitions() {
		r, ok := overrides[s.ID]
		if !ok {
			r = echoRunner(s)
		}
		require.NoError(t, c.Register(s, r))
	}
	require.NoError(t, c.Validate())
	return c
}

func newTestExecutor(t *testing.T, c *skills.Catalog, opts ...ExecutorOption) (*Executor, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	return NewExecutor(c, tl.Logger, opts...), tl
}

func logMessages(st *State) []string {
	msgs := make([]string, len(st.Log))
	for i, e := range st.Log {
		msgs[i] = e.Message
	}
	return msgs
}

func TestExecutor_RunChain_HaltsAtGate(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()
	var out Collector

	res, err := exec.RunChain(context.Background(), st, skills.Research, out.Sink())
	require.NoError(t, err)

	assert.Equal(t, []skills.ID{skills.Research, skills.Strategy}, res.Executed)
	assert.Equal(t, StopGate, res.Stop)
	assert.True(t, res.Halted())
	assert.Equal(t, "DIRECTION", res.Checkpoint)
	assert.Equal(t, skills.UX, res.Next)
	assert.Equal(t, skills.Strategy, st.Phase())

	last, ok := out.Last()
	require.True(t, ok)
	assert.Equal(t, FragmentCheckpoint, last.Kind)
	assert.Equal(t, "\n\n[GATE_ACTION: DIRECTION]\n", last.String())

	assert.Contains(t, out.Text(), "research done")
	assert.Contains(t, out.Text(), "**Business Strategist**")
	assert.Contains(t, logMessages(st), "System: Executing Market Researcher skill.")
	assert.Contains(t, logMessages(st), "System: Business Strategist completed successfully.")
}

func TestExecutor_EveryGateHalts(t *testing.T) {
	c := stubCatalog(t, nil)
	exec, _ := newTestExecutor(t, c)

	for _, sk := range c.List() {
		if !sk.IsGate() {
			continue
		}
		t.Run(string(sk.ID), func(t *testing.T) {
			st := NewState()
			var out Collector

			res, err := exec.RunChain(context.Background(), st, sk.ID, out.Sink())
			require.NoError(t, err)

			assert.Equal(t, []skills.ID{sk.ID}, res.Executed)
			assert.Equal(t, StopGate, res.Stop)
			assert.Equal(t, sk.Gate(), res.Checkpoint)
			assert.Equal(t, sk.ID, st.Phase())

			last, _ := out.Last()
			assert.Equal(t, FragmentCheckpoint, last.Kind)
			assert.Equal(t, sk.Gate(), last.Gate)
		})
	}
}

func TestExecutor_SoftStopBeforeManualSkill(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()
	var out Collector

	res, err := exec.RunChain(context.Background(), st, skills.PRD, out.Sink())
	require.NoError(t, err)

	assert.Equal(t, []skills.ID{skills.PRD}, res.Executed)
	assert.Equal(t, StopSoft, res.Stop)
	assert.Equal(t, skills.Building, res.Next)
	assert.Equal(t, skills.PRD, st.Phase())
	assert.NotContains(t, out.Kinds(), FragmentCheckpoint)
	_, built := st.Artifacts[provenance.KeyGeneratedCode]
	assert.False(t, built)
}

func TestExecutor_ChainRunsThroughNonGates(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()

	res, err := exec.RunChain(context.Background(), st, skills.UX, Discard)
	require.NoError(t, err)

	assert.Equal(t, []skills.ID{skills.UX, skills.Planning}, res.Executed)
	assert.Equal(t, "BLUEPRINT", res.Checkpoint)
}

func TestExecutor_FailureKeepsPartialState(t *testing.T) {
	boom := errors.New("model unavailable")
	c := stubCatalog(t, map[skills.ID]skills.Runner{
		skills.Strategy: skills.RunnerFunc(func(_ context.Context, ws skills.Workspace, _ string, emit skills.Emit) error {
			emit("partial ")
			ws.SetArtifact(provenance.KeyStrategy, "half a strategy", skills.Strategy)
			return boom
		}),
	})
	exec, tl := newTestExecutor(t, c)
	st := NewState()
	var out Collector

	res, err := exec.RunChain(context.Background(), st, skills.Research, out.Sink())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSkillFailed))
	assert.True(t, errors.Is(err, boom))

	assert.Equal(t, StopFailed, res.Stop)
	assert.Equal(t, []skills.ID{skills.Research}, res.Executed)
	assert.Equal(t, skills.Strategy, st.Phase())
	assert.Equal(t, "half a strategy", st.Artifacts[provenance.KeyStrategy].Content)

	last, _ := out.Last()
	assert.Equal(t, FragmentError, last.Kind)
	assert.Equal(t, "\n[Error during strategy: model unavailable]", last.String())
	assert.Contains(t, logMessages(st), "Error: Skill execution error (strategy): model unavailable")
	tl.AssertLogged(t, zapcore.ErrorLevel, "skill failed")
}

func TestExecutor_RecoversRunnerPanic(t *testing.T) {
	c := stubCatalog(t, map[skills.ID]skills.Runner{
		skills.UX: skills.RunnerFunc(func(context.Context, skills.Workspace, string, skills.Emit) error {
			panic("nil map")
		}),
	})
	exec, _ := newTestExecutor(t, c)
	st := NewState()

	res, err := exec.RunChain(context.Background(), st, skills.UX, Discard)
	require.ErrorIs(t, err, ErrSkillFailed)
	assert.Contains(t, err.Error(), "panic: nil map")
	assert.Equal(t, StopFailed, res.Stop)
	assert.Empty(t, res.Executed)
}

func TestExecutor_UnknownStartSkill(t *testing.T) {
	exec, tl := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()
	var out Collector

	res, err := exec.RunChain(context.Background(), st, skills.ID("translation"), out.Sink())
	require.NoError(t, err)

	assert.Equal(t, StopUnknown, res.Stop)
	assert.Empty(t, res.Executed)
	assert.Empty(t, out.Fragments)
	assert.Equal(t, skills.Intake, st.Phase())
	assert.Contains(t, logMessages(st), "System: Skill 'translation' not found, chain stopped.")
	tl.AssertLogged(t, zapcore.WarnLevel, "chain stopped at unknown skill")
}

func TestExecutor_RunOnce(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))

	t.Run("non gate does not continue", func(t *testing.T) {
		st := NewState()
		res, err := exec.RunOnce(context.Background(), st, skills.SEO, "shorter titles", Discard)
		require.NoError(t, err)

		assert.Equal(t, []skills.ID{skills.SEO}, res.Executed)
		assert.Equal(t, StopEnd, res.Stop)
		assert.Equal(t, skills.Copywriting, res.Next)
		assert.Equal(t, "seo output (shorter titles)", st.Artifacts[provenance.KeySEOData].Content)
	})

	t.Run("gate still checkpoints", func(t *testing.T) {
		st := NewState()
		var out Collector
		res, err := exec.RunOnce(context.Background(), st, skills.Copywriting, "punchier", out.Sink())
		require.NoError(t, err)

		assert.Equal(t, StopGate, res.Stop)
		assert.Equal(t, "MARKETING", res.Checkpoint)
		last, _ := out.Last()
		assert.Equal(t, FragmentCheckpoint, last.Kind)
	})
}

func TestExecutor_FeedbackOnlyReachesFirstSkill(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()

	_, err := exec.RunWithContinuation(context.Background(), st, skills.SEO, "local keywords", Discard)
	require.NoError(t, err)

	assert.Equal(t, "seo output (local keywords)", st.Artifacts[provenance.KeySEOData].Content)
	assert.Equal(t, "copywriting output", st.Artifacts[provenance.KeyCopywriting].Content)
}

func TestExecutor_ChainBoundedByCatalogSize(t *testing.T) {
	c := skills.NewCatalog([]skills.ID{"a", "b"})
	a := skills.Skill{ID: "a", DisplayName: "A", AutoExecute: true, SuggestedNext: "b"}
	b := skills.Skill{ID: "b", DisplayName: "B", AutoExecute: true, SuggestedNext: "a"}
	c.MustRegister(a, echoRunner(a))
	c.MustRegister(b, echoRunner(b))
	exec, _ := newTestExecutor(t, c)

	res, err := exec.RunChain(context.Background(), NewState(), "a", Discard)
	require.NoError(t, err)

	assert.Equal(t, []skills.ID{"a", "b"}, res.Executed)
	assert.Equal(t, StopLimit, res.Stop)
	assert.Equal(t, skills.ID("a"), res.Next)
}

func TestExecutor_CanceledContext(t *testing.T) {
	exec, _ := newTestExecutor(t, stubCatalog(t, nil))
	st := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := exec.RunChain(ctx, st, skills.Research, Discard)
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrSkillFailed)
	assert.Empty(t, res.Executed)
	assert.Equal(t, skills.Intake, st.Phase())
}

func TestExecutor_CanceledMidChainReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := stubCatalog(t, map[skills.ID]skills.Runner{
		skills.Research: skills.RunnerFunc(func(_ context.Context, _ skills.Workspace, _ string, emit skills.Emit) error {
			emit("findings")
			cancel()
			return nil
		}),
	})
	exec, tl := newTestExecutor(t, c)
	st := NewState()
	var out Collector

	res, err := exec.RunChain(ctx, st, skills.Research, out.Sink())
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrSkillFailed)

	assert.Equal(t, StopFailed, res.Stop)
	assert.Equal(t, []skills.ID{skills.Research}, res.Executed)
	last, _ := out.Last()
	assert.Equal(t, FragmentError, last.Kind)
	assert.Equal(t, skills.Strategy, last.Skill)
	assert.Contains(t, logMessages(st), "Error: Skill execution error (strategy): context canceled")
	tl.AssertLogged(t, zapcore.ErrorLevel, "chain interrupted")
}

func TestExecutor_RecordsSpans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	exec, _ := newTestExecutor(t, stubCatalog(t, nil), WithTelemetry(tt.Telemetry))

	_, err := exec.RunChain(context.Background(), NewState(), skills.Strategy, Discard)
	require.NoError(t, err)

	tt.AssertSpanExists(t, "orchestrator.chain")
	tt.AssertSpanExists(t, "skill.execute")
	tt.AssertSpanAttribute(t, "skill.execute", "skill.id", "strategy")
	tt.AssertSpanAttribute(t, "orchestrator.chain", "chain.stop", "gate")
}

func TestExecutor_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	exec, _ := newTestExecutor(t, stubCatalog(t, nil), WithMetrics(m))

	_, err := exec.RunChain(context.Background(), NewState(), skills.Research, Discard)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkpoints.WithLabelValues("DIRECTION")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ChainLength))
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "**Plain**\n\n", header(skills.Skill{DisplayName: "Plain"}))
	assert.True(t, strings.HasSuffix(header(skills.Skill{Icon: "🔍", DisplayName: "SEO"}), "🔍 **SEO**\n\n"))
}
