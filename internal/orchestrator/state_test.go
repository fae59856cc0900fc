package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

func TestNewState(t *testing.T) {
	st := NewState(provenance.KeyAudience, provenance.KeyOffer)

	_, err := uuid.Parse(st.ID)
	require.NoError(t, err)
	assert.Equal(t, skills.Intake, st.Phase())
	assert.Equal(t, []provenance.Key{provenance.KeyAudience, provenance.KeyOffer}, st.Missing())
	assert.Equal(t, st.CreatedAt, st.UpdatedAt)
}

func TestState_RefreshMissing(t *testing.T) {
	st := NewState(provenance.KeyAudience, provenance.KeyOffer, provenance.KeyTone)

	st.Fields.SetUser(provenance.KeyAudience, "families")
	st.Merge(provenance.KeyTone, "warm", 0.4, "research", "reviews")
	st.Fields.SetUser(provenance.KeyOffer, "")

	assert.Equal(t, []provenance.Key{provenance.KeyOffer}, st.RefreshMissing())
	assert.Equal(t, []provenance.Key{provenance.KeyOffer}, st.Missing())
}

func TestState_ReturnsCopies(t *testing.T) {
	st := NewState(provenance.KeyOffer)

	st.Missing()[0] = provenance.KeyTone
	st.Required()[0] = provenance.KeyTone

	assert.Equal(t, []provenance.Key{provenance.KeyOffer}, st.Missing())
	assert.Equal(t, []provenance.Key{provenance.KeyOffer}, st.Required())
}

func TestState_SetArtifactBumpsRevision(t *testing.T) {
	st := NewState()

	st.SetArtifact(provenance.KeySitemap, "v1", skills.Planning)
	st.editArtifact(provenance.KeySitemap, "v2", skills.Planning)
	st.SetArtifact(provenance.KeySitemap, "v3", skills.Planning)

	a := st.Artifacts[provenance.KeySitemap]
	assert.Equal(t, "v3", a.Content)
	assert.Equal(t, 3, a.Revision)
	assert.False(t, a.EditedByUser)

	content, ok := st.Artifact(provenance.KeySitemap)
	assert.True(t, ok)
	assert.Equal(t, "v3", content)
}

func TestState_HasOutput(t *testing.T) {
	c := stubCatalog(t, nil)
	st := NewState()

	assert.False(t, st.HasOutput(c, skills.Planning))
	st.SetArtifact(provenance.KeySitemap, "home", skills.Planning)
	assert.True(t, st.HasOutput(c, skills.Planning))
	assert.False(t, st.HasOutput(c, "missing"))
}

func TestState_MergeKeepsUserValue(t *testing.T) {
	st := NewState()
	st.Fields.SetUser(provenance.KeyIndustry, "Legal")

	rec := st.Merge(provenance.KeyIndustry, "Bakery", 0.95, "research", "name suggests food")

	assert.False(t, rec.Accepted)
	assert.Equal(t, "Legal", st.Fields.Value(provenance.KeyIndustry))
}

func TestState_View(t *testing.T) {
	c := stubCatalog(t, nil)
	st := NewState(provenance.KeyOffer)
	st.SetArtifact(provenance.KeyStrategy, "s", skills.Strategy)
	st.SetArtifact(provenance.KeyResearchData, "r", skills.Research)

	v := st.View(c)
	assert.Equal(t, skills.Intake, v.Phase)
	assert.Equal(t, []provenance.Key{provenance.KeyOffer}, v.Missing)
	assert.Equal(t, []provenance.Key{provenance.KeyResearchData, provenance.KeyStrategy}, v.Artifacts)
	assert.Len(t, v.Skills, c.Len())
}

func TestState_JSONRoundTrip(t *testing.T) {
	st := NewState(provenance.KeyAudience)
	st.enter(skills.Planning)
	st.Fields.SetUser(provenance.KeyProjectName, "Crumb")
	st.Merge(provenance.KeyAudience, "commuters", 0.7, "research", "station nearby")
	st.SetArtifact(provenance.KeySitemap, "home", skills.Planning)
	st.AppendLog("System: Executing Sitemap Architect skill.")
	st.AppendReasoning("Router", "proceeding", 0.8)
	st.AppendTranscript(RoleUser, "go")
	st.Feedback = append(st.Feedback, "more photos")
	st.RefreshMissing()

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "planning", raw["current_phase"])
	assert.Contains(t, raw, "reasoning_trail")
	assert.Contains(t, raw, "missing_required")

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, st.ID, back.ID)
	assert.Equal(t, skills.Planning, back.Phase())
	assert.Equal(t, st.Required(), back.Required())
	assert.Equal(t, "Crumb", back.Fields.Value(provenance.KeyProjectName))
	f, _ := back.Fields.Get(provenance.KeyAudience)
	assert.Equal(t, 0.7, f.Confidence)
	assert.Equal(t, "home", back.Artifacts[provenance.KeySitemap].Content)
	assert.Len(t, back.Log, 1)
	assert.Len(t, back.Reasoning, 1)
	assert.Len(t, back.Transcript, 1)
	assert.Equal(t, []string{"more photos"}, back.Feedback)

	back.AppendLog("still works")
	assert.Len(t, back.Log, 2)
}

func TestState_UnmarshalDefaults(t *testing.T) {
	var st State
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc"}`), &st))
	assert.Equal(t, skills.Intake, st.Phase())
	assert.NotNil(t, st.Fields)
	assert.NotNil(t, st.Artifacts)

	err := json.Unmarshal([]byte(`{"current_phase":"seo"}`), &st)
	assert.ErrorContains(t, err, "missing id")
}
