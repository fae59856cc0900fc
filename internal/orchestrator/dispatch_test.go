package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

func newTestDispatcher(t *testing.T, c *skills.Catalog, opts ...DispatcherOption) (*Dispatcher, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	exec := NewExecutor(c, tl.Logger)
	return NewDispatcher(exec, tl.Logger, opts...), tl
}

func lastReasoning(st *State) Reasoning {
	return st.Reasoning[len(st.Reasoning)-1]
}

func TestDispatch_ProceedRefusedWhileIntakeIncomplete(t *testing.T) {
	d, tl := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState(provenance.KeyAudience, provenance.KeyOffer)
	require.Len(t, st.Missing(), 2)
	var out Collector

	res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, out.Sink())
	require.NoError(t, err)

	assert.True(t, res.Refused)
	assert.False(t, res.Ran())
	assert.Equal(t, skills.Intake, st.Phase())
	assert.Empty(t, out.Fragments)
	assert.Empty(t, st.Artifacts)
	assert.Contains(t, logMessages(st), "System: Cannot leave intake yet, missing required fields: audience, offer.")
	assert.Equal(t, routerActor, lastReasoning(st).Actor)
	tl.AssertLogged(t, zapcore.InfoLevel, "dispatch refused")
}

func TestDispatch_ProceedFromIntakeRunsToStrategy(t *testing.T) {
	d, _ := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState(provenance.KeyAudience, provenance.KeyOffer)
	st.Fields.SetUser(provenance.KeyAudience, "young families")
	st.Fields.SetUser(provenance.KeyOffer, "sourdough subscriptions")
	st.RefreshMissing()
	var out Collector

	res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, out.Sink())
	require.NoError(t, err)

	require.NotNil(t, res.Chain)
	assert.Equal(t, []skills.ID{skills.Research, skills.Strategy}, res.Chain.Executed)
	assert.Equal(t, skills.Strategy, st.Phase())
	last, _ := out.Last()
	assert.Equal(t, CheckpointMarker("DIRECTION"), last.String())
}

func TestDispatch_ProceedReadsLedgerNotCachedMissing(t *testing.T) {
	t.Run("fields set without refresh", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState(provenance.KeyAudience, provenance.KeyOffer)
		st.Fields.SetUser(provenance.KeyAudience, "young families")
		st.Fields.SetUser(provenance.KeyOffer, "sourdough subscriptions")

		res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, Discard)
		require.NoError(t, err)

		assert.False(t, res.Refused, res.Reason)
		assert.Equal(t, skills.Strategy, st.Phase())
	})

	t.Run("field reset after refresh", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState(provenance.KeyAudience)
		st.Fields.SetUser(provenance.KeyAudience, "young families")
		require.Empty(t, st.RefreshMissing())
		require.True(t, st.Fields.Reset(provenance.KeyAudience))

		res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, Discard)
		require.NoError(t, err)

		assert.True(t, res.Refused)
		assert.Contains(t, res.Reason, "audience")
		assert.Equal(t, skills.Intake, st.Phase())
		assert.Equal(t, []provenance.Key{provenance.KeyAudience}, st.Missing())
	})
}

func TestDispatch_ProceedHardJumpIgnoresExplicitTarget(t *testing.T) {
	d, _ := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState()
	st.enter(skills.Planning)

	res, err := d.Dispatch(context.Background(), st, intent.Decision{
		Action:          intent.ActionProceed,
		NaturalNextStep: skills.UX,
	}, Discard)
	require.NoError(t, err)

	assert.Equal(t, []skills.ID{skills.SEO, skills.Copywriting}, res.Chain.Executed)
	assert.Equal(t, "MARKETING", res.Chain.Checkpoint)
}

func TestDispatch_ProceedCustomPredicate(t *testing.T) {
	blocked := map[skills.ID]Predicate{
		skills.Strategy: func(*State) bool { return false },
	}
	d, _ := newTestDispatcher(t, stubCatalog(t, nil), WithPredicates(blocked))
	st := NewState()
	st.enter(skills.Strategy)

	res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, Discard)
	require.NoError(t, err)
	assert.True(t, res.Refused)
	assert.Equal(t, "Cannot leave strategy yet.", res.Reason)
}

func TestDispatch_ProceedAtEndOfPipeline(t *testing.T) {
	d, _ := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState()
	st.enter(skills.Building)

	res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, Discard)
	require.NoError(t, err)
	assert.True(t, res.Refused)
	assert.Equal(t, skills.Building, st.Phase())
}

func TestDispatch_Invoke(t *testing.T) {
	tests := []struct {
		name     string
		skill    skills.ID
		refused  bool
		executed []skills.ID
		stop     StopReason
	}{
		{name: "unknown skill", skill: "translation", refused: true},
		{name: "intake is not directly invocable", skill: skills.Intake, refused: true},
		{name: "gate runs alone", skill: skills.Planning, executed: []skills.ID{skills.Planning}, stop: StopGate},
		{name: "continues to next gate", skill: skills.SEO, executed: []skills.ID{skills.SEO, skills.Copywriting}, stop: StopGate},
		{name: "prd soft stops", skill: skills.PRD, executed: []skills.ID{skills.PRD}, stop: StopSoft},
		{name: "building runs when asked", skill: skills.Building, executed: []skills.ID{skills.Building}, stop: StopEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t, stubCatalog(t, nil))
			st := NewState()

			res, err := d.Dispatch(context.Background(), st, intent.Decision{
				Action:         intent.ActionInvoke,
				RequestedSkill: tt.skill,
			}, Discard)
			require.NoError(t, err)

			assert.Equal(t, tt.refused, res.Refused)
			if tt.refused {
				assert.Nil(t, res.Chain)
				assert.Equal(t, skills.Intake, st.Phase())
				return
			}
			require.NotNil(t, res.Chain)
			assert.Equal(t, tt.executed, res.Chain.Executed)
			assert.Equal(t, tt.stop, res.Chain.Stop)
		})
	}
}

func TestDispatch_InvokeWarnsAboutMissingPrerequisites(t *testing.T) {
	d, tl := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState()

	res, err := d.Dispatch(context.Background(), st, intent.Decision{
		Action:         intent.ActionInvoke,
		RequestedSkill: skills.PRD,
	}, Discard)
	require.NoError(t, err)

	assert.True(t, res.Ran())
	assert.Contains(t, logMessages(st), "Warning: Technical Strategist is running without planning, copywriting.")
	tl.AssertLogged(t, zapcore.WarnLevel, "invoking skill with missing prerequisites")
}

func TestDispatch_Revise(t *testing.T) {
	t.Run("defaults to current phase", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		st.enter(skills.UX)

		res, err := d.Dispatch(context.Background(), st, intent.Decision{
			Action:           intent.ActionRevise,
			RevisionFeedback: "add a mobile persona",
		}, Discard)
		require.NoError(t, err)

		assert.Equal(t, []skills.ID{skills.UX}, res.Chain.Executed)
		assert.Equal(t, StopEnd, res.Chain.Stop)
		assert.Equal(t, "ux output (add a mobile persona)", st.Artifacts[provenance.KeyUXStrategy].Content)
	})

	t.Run("gate emits checkpoint", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		var out Collector

		res, err := d.Dispatch(context.Background(), st, intent.Decision{
			Action:           intent.ActionRevise,
			RequestedSkill:   skills.Strategy,
			RevisionFeedback: "focus on retention",
		}, out.Sink())
		require.NoError(t, err)
		assert.Equal(t, StopGate, res.Chain.Stop)
		last, _ := out.Last()
		assert.Equal(t, FragmentCheckpoint, last.Kind)
	})

	t.Run("refused without revision support", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		before := len(st.Artifacts)

		res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionRevise}, Discard)
		require.NoError(t, err)
		assert.True(t, res.Refused)
		assert.Equal(t, "Intake & Audit does not support revisions.", res.Reason)
		assert.Len(t, st.Artifacts, before)
	})
}

func TestDispatch_Edit(t *testing.T) {
	t.Run("applies to active phase artifact", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		st.enter(skills.Planning)
		st.SetArtifact(provenance.KeySitemap, "home, about", skills.Planning)

		res, err := d.Dispatch(context.Background(), st, intent.Decision{
			Action:  intent.ActionEdit,
			Updates: map[string]any{"sitemap": "home, menu, about"},
		}, Discard)
		require.NoError(t, err)

		assert.False(t, res.Refused)
		a := st.Artifacts[provenance.KeySitemap]
		assert.Equal(t, "home, menu, about", a.Content)
		assert.True(t, a.EditedByUser)
		assert.Equal(t, 2, a.Revision)
	})

	t.Run("falls back to feedback text", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		st.enter(skills.Copywriting)

		_, err := d.Dispatch(context.Background(), st, intent.Decision{
			Action:           intent.ActionEdit,
			RevisionFeedback: "Fresh bread, every morning.",
		}, Discard)
		require.NoError(t, err)
		assert.Equal(t, "Fresh bread, every morning.", st.Artifacts[provenance.KeyCopywriting].Content)
	})

	t.Run("refused outside owning phase", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		st.enter(skills.SEO)
		st.SetArtifact(provenance.KeySitemap, "home", skills.Planning)

		res, err := d.Dispatch(context.Background(), st, intent.Decision{
			Action:           intent.ActionEdit,
			RequestedSkill:   skills.Planning,
			RevisionFeedback: "home, blog",
		}, Discard)
		require.NoError(t, err)

		assert.True(t, res.Refused)
		assert.Equal(t, "home", st.Artifacts[provenance.KeySitemap].Content)
		assert.Contains(t, logMessages(st), "System: Edit refused: planning is not the active phase.")
	})

	t.Run("refused without content", func(t *testing.T) {
		d, _ := newTestDispatcher(t, stubCatalog(t, nil))
		st := NewState()
		st.enter(skills.Strategy)

		res, err := d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionEdit}, Discard)
		require.NoError(t, err)
		assert.True(t, res.Refused)
		assert.Empty(t, st.Artifacts)
	})
}

func TestDispatch_ChatAndFeedbackRunNothing(t *testing.T) {
	d, _ := newTestDispatcher(t, stubCatalog(t, nil))
	st := NewState()
	var out Collector

	res, err := d.Dispatch(context.Background(), st, intent.Chat("small talk"), out.Sink())
	require.NoError(t, err)
	assert.Equal(t, intent.ActionChat, res.Action)
	assert.False(t, res.Ran())

	res, err = d.Dispatch(context.Background(), st, intent.Decision{
		Action:           intent.ActionFeedback,
		RevisionFeedback: "love the colors",
	}, out.Sink())
	require.NoError(t, err)
	assert.False(t, res.Ran())

	assert.Empty(t, out.Fragments)
	assert.Empty(t, st.Artifacts)
	assert.Equal(t, []string{"love the colors"}, st.Feedback)
	assert.Equal(t, skills.Intake, st.Phase())
}

func TestDispatch_EmptyActionIsChat(t *testing.T) {
	d, _ := newTestDispatcher(t, stubCatalog(t, nil))
	res, err := d.Dispatch(context.Background(), NewState(), intent.Decision{}, Discard)
	require.NoError(t, err)
	assert.Equal(t, intent.ActionChat, res.Action)
}

func TestDispatch_FailureReturnsError(t *testing.T) {
	c := stubCatalog(t, map[skills.ID]skills.Runner{
		skills.Research: skills.RunnerFunc(func(context.Context, skills.Workspace, string, skills.Emit) error {
			return errors.New("timeout")
		}),
	})
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, _ := newTestDispatcher(t, c, WithDispatchMetrics(m))
	st := NewState()

	res, err := d.Dispatch(context.Background(), st, intent.Decision{
		Action:         intent.ActionInvoke,
		RequestedSkill: skills.Research,
	}, Discard)
	require.ErrorIs(t, err, ErrSkillFailed)
	assert.Equal(t, StopFailed, res.Chain.Stop)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("INVOKE", "failed")))
}

func TestDispatch_MetricsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, _ := newTestDispatcher(t, stubCatalog(t, nil), WithDispatchMetrics(m))
	st := NewState(provenance.KeyOffer)

	_, _ = d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionProceed}, Discard)
	_, _ = d.Dispatch(context.Background(), st, intent.Decision{Action: intent.ActionInvoke, RequestedSkill: skills.UX}, Discard)
	_, _ = d.Dispatch(context.Background(), st, intent.Chat(""), Discard)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("PROCEED", "refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("INVOKE", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("CHAT", "recorded")))
}
