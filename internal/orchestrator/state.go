package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
)

// Artifact is a document produced by a skill
type Artifact struct {
	Content      string    `json:"content"`
	Skill        skills.ID `json:"skill"`
	Revision     int       `json:"revision"`
	EditedByUser bool      `json:"edited_by_user,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LogEntry is one audit record
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Reasoning records why an actor made a decision
type Reasoning struct {
	Time      time.Time `json:"time"`
	Actor     string    `json:"actor"`
	Thought   string    `json:"thought"`
	Certainty float64   `json:"certainty"`
}

// ChatRole identifies the author of a transcript message
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one transcript entry
type ChatMessage struct {
	Role    ChatRole  `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// State is the complete state of one session.
//
// A State is exclusively owned by the request currently processing its
// session and is not safe for concurrent use.
type State struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Fields     *provenance.Ledger
	Artifacts  map[provenance.Key]Artifact
	Log        []LogEntry
	Reasoning  []Reasoning
	Feedback   []string
	Transcript []ChatMessage

	phase    skills.ID
	required []provenance.Key
	missing  []provenance.Key
	now      func() time.Time
}

// NewState creates a session at the intake phase. required lists the
// fields that must be resolved before intake may be left.
func NewState(required ...provenance.Key) *State {
	now := time.Now().UTC()
	s := &State{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    provenance.NewLedger(),
		Artifacts: make(map[provenance.Key]Artifact),
		phase:     skills.Intake,
		required:  append([]provenance.Key(nil), required...),
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.RefreshMissing()
	return s
}

// Phase returns the id of the skill most recently entered.
func (s *State) Phase() skills.ID {
	return s.phase
}

// enter moves the session to phase. Only the executor calls it.
func (s *State) enter(phase skills.ID) {
	s.phase = phase
	s.touch()
}

// Required returns the fields that gate leaving intake.
func (s *State) Required() []provenance.Key {
	return append([]provenance.Key(nil), s.required...)
}

// Field implements skills.Workspace.
func (s *State) Field(k provenance.Key) (provenance.Field, bool) {
	return s.Fields.Get(k)
}

// Merge implements skills.Workspace.
func (s *State) Merge(k provenance.Key, value any, confidence float64, source, rationale string) provenance.MergeRecord {
	rec := s.Fields.Merge(k, value, confidence, source, rationale)
	if rec.Accepted {
		s.touch()
	}
	return rec
}

// Artifact implements skills.Workspace.
func (s *State) Artifact(k provenance.Key) (string, bool) {
	a, ok := s.Artifacts[k]
	if !ok {
		return "", false
	}
	return a.Content, true
}

// SetArtifact implements skills.Workspace.
func (s *State) SetArtifact(k provenance.Key, content string, by skills.ID) {
	prev := s.Artifacts[k]
	s.Artifacts[k] = Artifact{
		Content:   content,
		Skill:     by,
		Revision:  prev.Revision + 1,
		UpdatedAt: s.now(),
	}
	s.touch()
}

// editArtifact stores a user edit of an artifact.
func (s *State) editArtifact(k provenance.Key, content string, owner skills.ID) {
	s.SetArtifact(k, content, owner)
	a := s.Artifacts[k]
	a.EditedByUser = true
	s.Artifacts[k] = a
}

// HasOutput reports whether skill id has produced its artifact.
func (s *State) HasOutput(catalog *skills.Catalog, id skills.ID) bool {
	sk, ok := catalog.Get(id)
	if !ok || sk.Artifact == "" {
		return false
	}
	_, ok = s.Artifacts[sk.Artifact]
	return ok
}

// Missing implements skills.Workspace.
func (s *State) Missing() []provenance.Key {
	return append([]provenance.Key(nil), s.missing...)
}

// RefreshMissing implements skills.Workspace. A required field is
// resolved once it has any active value, user or inferred.
func (s *State) RefreshMissing() []provenance.Key {
	missing := make([]provenance.Key, 0, len(s.required))
	for _, k := range s.required {
		if !s.Fields.Has(k) {
			missing = append(missing, k)
		}
	}
	s.missing = missing
	return s.Missing()
}

// AppendLog implements skills.Workspace.
func (s *State) AppendLog(msg string) {
	s.Log = append(s.Log, LogEntry{Time: s.now(), Message: msg})
	s.touch()
}

// AppendReasoning implements skills.Workspace.
func (s *State) AppendReasoning(actor, thought string, certainty float64) {
	s.Reasoning = append(s.Reasoning, Reasoning{
		Time:      s.now(),
		Actor:     actor,
		Thought:   thought,
		Certainty: certainty,
	})
	s.touch()
}

// AppendTranscript records a chat message.
func (s *State) AppendTranscript(role ChatRole, content string) {
	s.Transcript = append(s.Transcript, ChatMessage{Role: role, Content: content, Time: s.now()})
	s.touch()
}

// View returns what a classifier may see of the session.
func (s *State) View(catalog *skills.Catalog) intent.View {
	v := intent.View{
		Phase:   s.phase,
		Missing: s.Missing(),
		Fields:  s.Fields.Snapshot(),
		Skills:  catalog.List(),
	}
	for _, k := range provenance.ArtifactKeys() {
		if _, ok := s.Artifacts[k]; ok {
			v.Artifacts = append(v.Artifacts, k)
		}
	}
	return v
}

func (s *State) touch() {
	s.UpdatedAt = s.now()
}

// stateJSON is the persisted form of State.
type stateJSON struct {
	ID         string                      `json:"id"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
	Phase      skills.ID                   `json:"current_phase"`
	Fields     *provenance.Ledger          `json:"fields"`
	Artifacts  map[provenance.Key]Artifact `json:"artifacts"`
	Required   []provenance.Key            `json:"required_fields"`
	Missing    []provenance.Key            `json:"missing_required"`
	Log        []LogEntry                  `json:"log"`
	Reasoning  []Reasoning                 `json:"reasoning_trail"`
	Feedback   []string                    `json:"feedback,omitempty"`
	Transcript []ChatMessage               `json:"transcript"`
}

// MarshalJSON encodes the state for storage and API responses.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		Phase:      s.phase,
		Fields:     s.Fields,
		Artifacts:  s.Artifacts,
		Required:   s.required,
		Missing:    s.missing,
		Log:        s.Log,
		Reasoning:  s.Reasoning,
		Feedback:   s.Feedback,
		Transcript: s.Transcript,
	})
}

// UnmarshalJSON restores a state written by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding session state: %w", err)
	}
	if raw.ID == "" {
		return fmt.Errorf("decoding session state: missing id")
	}
	if raw.Fields == nil {
		raw.Fields = provenance.NewLedger()
	}
	if raw.Artifacts == nil {
		raw.Artifacts = make(map[provenance.Key]Artifact)
	}
	if raw.Phase == skills.None {
		raw.Phase = skills.Intake
	}

	*s = State{
		ID:         raw.ID,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
		Fields:     raw.Fields,
		Artifacts:  raw.Artifacts,
		Log:        raw.Log,
		Reasoning:  raw.Reasoning,
		Feedback:   raw.Feedback,
		Transcript: raw.Transcript,
		phase:      raw.Phase,
		required:   raw.Required,
		missing:    raw.Missing,
		now:        func() time.Time { return time.Now().UTC() },
	}
	return nil
}
