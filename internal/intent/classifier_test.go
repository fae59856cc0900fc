package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// MockClassifier is a mock implementation of Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, view View, message string) (Decision, error) {
	args := m.Called(ctx, view, message)
	return args.Get(0).(Decision), args.Error(1)
}

func TestSafe_ErrorBecomesChat(t *testing.T) {
	inner := &MockClassifier{}
	inner.On("Classify", mock.Anything, mock.Anything, "hi").Return(Decision{}, errors.New("bad json"))
	logger := logging.NewTestLogger()

	d, err := Safe(inner, logger.Logger).Classify(context.Background(), View{}, "hi")

	require.NoError(t, err)
	assert.Equal(t, ActionChat, d.Action)
	assert.Empty(t, d.Updates)
	assert.Empty(t, d.RequestedSkill)
	logger.AssertLogged(t, zapcore.WarnLevel, "classification failed")
	inner.AssertExpectations(t)
}

func TestSafe_PanicBecomesChat(t *testing.T) {
	inner := ClassifierFunc(func(context.Context, View, string) (Decision, error) {
		panic("nil map")
	})
	logger := logging.NewTestLogger()

	d, err := Safe(inner, logger.Logger).Classify(context.Background(), View{}, "hi")

	require.NoError(t, err)
	assert.Equal(t, ActionChat, d.Action)
	logger.AssertLogged(t, zapcore.ErrorLevel, "classifier panicked")
}

func TestSafe_NormalizesDecision(t *testing.T) {
	inner := ClassifierFunc(func(context.Context, View, string) (Decision, error) {
		return Decision{Action: "proceed"}, nil
	})

	d, err := Safe(inner, logging.NewTestLogger().Logger).Classify(context.Background(), View{}, "ok")

	require.NoError(t, err)
	assert.Equal(t, ActionProceed, d.Action)
	assert.NotNil(t, d.Updates)
}

func TestModelClassifier(t *testing.T) {
	model := generate.NewScripted(`{"action": "PROCEED", "certainty": 0.9}`)
	c := NewModelClassifier(model)
	view := View{
		Phase:   skills.Intake,
		Missing: []provenance.Key{provenance.KeyOffer},
		Fields: map[provenance.Key]provenance.Field{
			provenance.KeyIndustry: {Value: "Bakery", Provenance: provenance.User},
		},
		Skills: skills.Definitions(),
	}

	d, err := c.Classify(context.Background(), view, "looks great, go on")

	require.NoError(t, err)
	assert.Equal(t, ActionProceed, d.Action)
	assert.Equal(t, 0.9, d.Certainty)

	prompt := model.Prompts()[0]
	assert.Contains(t, prompt, "Current phase: intake")
	assert.Contains(t, prompt, "Missing required fields: offer")
	assert.Contains(t, prompt, "- industry (user)")
	assert.Contains(t, prompt, "- intake: Intake & Audit. Checks that the required project information is present (not directly invocable)")
	assert.Contains(t, prompt, "looks great, go on")
}

func TestModelClassifier_ParseFailureSurfacesError(t *testing.T) {
	c := NewModelClassifier(generate.NewScripted("sure thing!"))

	_, err := c.Classify(context.Background(), View{}, "hello")
	assert.ErrorIs(t, err, ErrMalformed)

	d, err := Safe(c, logging.NewTestLogger().Logger).Classify(context.Background(), View{}, "hello")
	require.NoError(t, err)
	assert.Equal(t, ActionChat, d.Action)
}

func TestKeywordClassifier(t *testing.T) {
	catalog, err := skills.NewDefaultCatalog(generate.NewScripted())
	require.NoError(t, err)
	c := NewKeywordClassifier(catalog)

	tests := []struct {
		message string
		action  Action
		skill   skills.ID
	}{
		{"Looks good, proceed", ActionProceed, skills.None},
		{"Please revise the sitemap with a blog", ActionRevise, skills.Planning},
		{"change the tone", ActionRevise, skills.None},
		{"can you do some SEO keywords", ActionInvoke, skills.SEO},
		{"we sell sourdough", ActionChat, skills.None},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			d, err := c.Classify(context.Background(), View{Phase: skills.Planning}, tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.skill, d.RequestedSkill)
		})
	}
}

func TestFallback(t *testing.T) {
	primary := &MockClassifier{}
	secondary := &MockClassifier{}
	invoke := Decision{Action: ActionInvoke, RequestedSkill: skills.Planning}

	primary.On("Classify", mock.Anything, mock.Anything, "ok").Return(Decision{Action: ActionProceed}, nil)
	primary.On("Classify", mock.Anything, mock.Anything, "down").Return(Decision{}, errors.New("model unavailable"))
	secondary.On("Classify", mock.Anything, mock.Anything, "down").Return(invoke, nil)

	c := Fallback(primary, secondary)

	d, err := c.Classify(context.Background(), View{}, "ok")
	require.NoError(t, err)
	assert.Equal(t, ActionProceed, d.Action)
	secondary.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, "ok")

	d, err = c.Classify(context.Background(), View{}, "down")
	require.NoError(t, err)
	assert.Equal(t, invoke, d)
}

func TestFallback_BothFail(t *testing.T) {
	primary := &MockClassifier{}
	secondary := &MockClassifier{}
	primary.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(Decision{}, errors.New("first"))
	secondary.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(Decision{}, errors.New("second"))

	_, err := Fallback(primary, secondary).Classify(context.Background(), View{}, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}
