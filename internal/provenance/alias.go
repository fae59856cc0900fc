package provenance

import (
	"fmt"
	"strings"
)

// DefaultAliases maps short names used in conversation to canonical keys.
func DefaultAliases() map[string]Key {
	return map[string]Key{
		"name":    KeyProjectName,
		"colors":  KeyBrandColors,
		"palette": KeyBrandColors,
		"style":   KeyDesignStyle,
		"vibe":    KeyDesignStyle,
	}
}

// AliasTable resolves raw update names to canonical keys. It is built and
// validated once at startup and read-only afterwards.
type AliasTable struct {
	aliases map[string]Key
}

// NewAliasTable validates aliases and returns a table. Every target must be
// a canonical field or artifact key, and no alias may shadow a canonical
// key.
func NewAliasTable(aliases map[string]Key) (*AliasTable, error) {
	t := &AliasTable{aliases: make(map[string]Key, len(aliases))}
	for alias, target := range aliases {
		a := normalizeName(alias)
		if a == "" {
			return nil, fmt.Errorf("alias for %q is empty", target)
		}
		if IsField(Key(a)) || IsArtifact(Key(a)) {
			return nil, fmt.Errorf("alias %q shadows a canonical key", alias)
		}
		if !IsField(target) && !IsArtifact(target) {
			return nil, fmt.Errorf("alias %q: %w: %s", alias, ErrUnknownField, target)
		}
		t.aliases[a] = target
	}
	return t, nil
}

// MustAliasTable is like NewAliasTable but panics on an invalid table.
func MustAliasTable(aliases map[string]Key) *AliasTable {
	t, err := NewAliasTable(aliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Canonicalize resolves raw to a canonical key.
func (t *AliasTable) Canonicalize(raw string) (Key, bool) {
	name := normalizeName(raw)
	if k, ok := t.aliases[name]; ok {
		return k, true
	}
	k := Key(name)
	if IsField(k) || IsArtifact(k) {
		return k, true
	}
	return "", false
}

// Normalize coerces value into the shape stored for k. Brand colors given
// as a comma separated string become a list.
func Normalize(k Key, value any) any {
	if k != KeyBrandColors {
		return value
	}
	switch v := value.(type) {
	case string:
		parts := strings.Split(v, ",")
		colors := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				colors = append(colors, p)
			}
		}
		return colors
	case []any:
		colors := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				colors = append(colors, s)
			}
		}
		return colors
	default:
		return value
	}
}

func normalizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(name, " ", "_")
}
