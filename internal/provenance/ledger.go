package provenance

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// DefaultAssumptionConfidence is the nominal confidence written by the
// assumption path when the caller does not supply one.
const DefaultAssumptionConfidence = 0.5

// Ledger holds the tracked fields of one session.
//
// A Ledger is owned by a single session and is not safe for concurrent use.
type Ledger struct {
	fields map[Key]Field
	now    func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		fields: make(map[Key]Field),
		now:    time.Now,
	}
}

// Get returns the stored field for k.
func (l *Ledger) Get(k Key) (Field, bool) {
	f, ok := l.fields[k]
	return f, ok
}

// Value returns the active value for k, or nil when unset.
func (l *Ledger) Value(k Key) any {
	return l.fields[k].Value
}

// Has reports whether k has a non-empty active value.
func (l *Ledger) Has(k Key) bool {
	f, ok := l.fields[k]
	if !ok {
		return false
	}
	return !isEmpty(f.Value)
}

// Keys returns the set keys in sorted order.
func (l *Ledger) Keys() []Key {
	keys := make([]Key, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of stored fields.
func (l *Ledger) Len() int {
	return len(l.fields)
}

// Merge offers an inferred value for k.
//
// User-owned fields always reject. Otherwise the value is stored only
// when confidence is strictly greater than the stored confidence; an
// absent field accepts any valid confidence. Ties keep the existing value
// and rationale.
func (l *Ledger) Merge(k Key, value any, confidence float64, source, rationale string) MergeRecord {
	existing, ok := l.fields[k]
	rec := MergeRecord{Field: k, NewConfidence: confidence}
	if ok {
		rec.OldConfidence = existing.Confidence
	}

	if ok && existing.IsUser() {
		rec.Reason = ReasonUserOwned
		return rec
	}

	if math.IsNaN(confidence) {
		rec.Reason = ReasonInvalidScore
		return rec
	}
	confidence = clamp(confidence)
	rec.NewConfidence = confidence

	if ok && confidence <= existing.Confidence {
		rec.Reason = ReasonNotHigher
		return rec
	}

	l.fields[k] = Field{
		Value:      value,
		Provenance: Inferred,
		Confidence: confidence,
		Source:     source,
		Rationale:  rationale,
		UpdatedAt:  l.now(),
	}
	rec.Accepted = true
	return rec
}

// Assume writes a classifier assumption for k at a nominal confidence.
//
// It follows Merge: user fields reject, and the assumption is stored only
// when its confidence is strictly above the stored one, so an equal
// inference or an earlier equal assumption is kept.
func (l *Ledger) Assume(k Key, value any, source string, confidence float64) MergeRecord {
	existing, ok := l.fields[k]
	rec := MergeRecord{Field: k, NewConfidence: confidence}
	if ok {
		rec.OldConfidence = existing.Confidence
	}

	if ok && existing.IsUser() {
		rec.Reason = ReasonUserOwned
		return rec
	}
	if math.IsNaN(confidence) {
		rec.Reason = ReasonInvalidScore
		return rec
	}
	confidence = clamp(confidence)
	rec.NewConfidence = confidence

	if ok && existing.Confidence >= confidence {
		rec.Reason = ReasonNotHigher
		return rec
	}

	l.fields[k] = Field{
		Value:      value,
		Provenance: Inferred,
		Confidence: confidence,
		Source:     source,
		Rationale:  "assumed from conversation",
		UpdatedAt:  l.now(),
	}
	rec.Accepted = true
	return rec
}

// SetUser stores a user-provided value for k, overriding anything stored
// and making the field user-owned until Reset is called.
func (l *Ledger) SetUser(k Key, value any) {
	l.fields[k] = Field{
		Value:      value,
		Provenance: User,
		UpdatedAt:  l.now(),
	}
}

// Reset clears a user override so the field is eligible for inference
// again. It reports whether an override was removed.
func (l *Ledger) Reset(k Key) bool {
	f, ok := l.fields[k]
	if !ok || !f.IsUser() {
		return false
	}
	delete(l.fields, k)
	return true
}

// Snapshot returns a copy of all stored fields.
func (l *Ledger) Snapshot() map[Key]Field {
	out := make(map[Key]Field, len(l.fields))
	for k, f := range l.fields {
		out[k] = f
	}
	return out
}

// MarshalJSON encodes the ledger as a map of key to field.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.fields)
}

// UnmarshalJSON decodes a ledger written by MarshalJSON.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	fields := make(map[Key]Field)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	l.fields = fields
	if l.now == nil {
		l.now = time.Now
	}
	return nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
