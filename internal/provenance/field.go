// Package provenance tracks where project field values came from and
// reconciles machine-inferred values against values the user set.
//
// A field is either user-owned or inferred. User-owned fields are final:
// no inference path may change them. Inferred fields carry a confidence
// score, and a new inference replaces the stored one only when its
// confidence is strictly greater.
package provenance

import (
	"errors"
	"time"
)

// ErrUnknownField is returned when a raw field name does not resolve to a
// canonical key.
var ErrUnknownField = errors.New("unknown field")

// Key identifies a canonical tracked field.
type Key string

const (
	KeyProjectName Key = "project_name"
	KeyIndustry    Key = "industry"
	KeyAudience    Key = "audience"
	KeyOffer       Key = "offer"
	KeyGoal        Key = "goal"
	KeyTone        Key = "tone"
	KeyBrandColors Key = "brand_colors"
	KeyDesignStyle Key = "design_style"
	KeyLocation    Key = "location"
	KeyWebsite     Key = "website"
)

// Artifact keys. These are owned by skills and stored as artifacts rather
// than provenance-tracked fields.
const (
	KeyProjectBrief  Key = "project_brief"
	KeyResearchData  Key = "research_data"
	KeyStrategy      Key = "strategy"
	KeyUXStrategy    Key = "ux_strategy"
	KeySitemap       Key = "sitemap"
	KeySEOData       Key = "seo_data"
	KeyCopywriting   Key = "copywriting"
	KeyPRDDocument   Key = "prd_document"
	KeyGeneratedCode Key = "generated_code"
)

// FieldKeys returns the canonical project field keys.
func FieldKeys() []Key {
	return []Key{
		KeyProjectName, KeyIndustry, KeyAudience, KeyOffer, KeyGoal,
		KeyTone, KeyBrandColors, KeyDesignStyle, KeyLocation, KeyWebsite,
	}
}

// ArtifactKeys returns the keys of skill-owned artifacts.
func ArtifactKeys() []Key {
	return []Key{
		KeyProjectBrief, KeyResearchData, KeyStrategy, KeyUXStrategy,
		KeySitemap, KeySEOData, KeyCopywriting, KeyPRDDocument, KeyGeneratedCode,
	}
}

// IsField reports whether k is a canonical project field.
func IsField(k Key) bool {
	for _, f := range FieldKeys() {
		if f == k {
			return true
		}
	}
	return false
}

// IsArtifact reports whether k names a skill-owned artifact.
func IsArtifact(k Key) bool {
	for _, a := range ArtifactKeys() {
		if a == k {
			return true
		}
	}
	return false
}

// Provenance records who produced a field's active value.
type Provenance string

const (
	User     Provenance = "user"
	Inferred Provenance = "inferred"
)

// Field is the stored state of one tracked field.
type Field struct {
	Value      any        `json:"value"`
	Provenance Provenance `json:"provenance"`

	// Confidence, Source and Rationale are only meaningful when
	// Provenance is Inferred.
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
	Rationale  string  `json:"rationale,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsUser reports whether the field is user-owned.
func (f Field) IsUser() bool {
	return f.Provenance == User
}

// MergeRecord is the outcome of a single inference merge.
type MergeRecord struct {
	Field         Key     `json:"field"`
	OldConfidence float64 `json:"old_confidence"`
	NewConfidence float64 `json:"new_confidence"`
	Accepted      bool    `json:"accepted"`
	Reason        string  `json:"reason,omitempty"`
}

// Rejection reasons carried on MergeRecord.
const (
	ReasonUserOwned    = "user_owned"
	ReasonNotHigher    = "confidence_not_higher"
	ReasonInvalidScore = "invalid_confidence"
)
