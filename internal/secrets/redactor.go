package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Finding locates one detected secret in the original text.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result is the outcome of redacting one text.
type Result struct {
	Text     string
	Findings []Finding
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rules that matched, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]bool, len(r.Findings))
	var ids []string
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Redactor replaces secrets in text. A nil Redactor returns text unchanged.
// It holds no mutable state and is safe for concurrent use.
type Redactor struct {
	enabled     bool
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
}

// New compiles cfg into a Redactor. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid secrets config: %w", err)
	}

	r := &Redactor{
		enabled:     cfg.Enabled,
		replacement: cfg.Replacement,
	}
	for _, rule := range cfg.Rules {
		keywords := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			keywords[i] = strings.ToLower(kw)
		}
		r.rules = append(r.rules, compiledRule{
			id:       rule.ID,
			pattern:  regexp.MustCompile(rule.Pattern),
			keywords: keywords,
		})
	}
	for _, p := range cfg.AllowList {
		r.allow = append(r.allow, regexp.MustCompile(p))
	}
	return r, nil
}

// Redact replaces every detected secret in text. Overlapping matches are
// merged into a single replacement.
func (r *Redactor) Redact(text string) Result {
	if r == nil || !r.enabled || text == "" {
		return Result{Text: text}
	}

	lower := strings.ToLower(text)
	var findings []Finding
	for _, rule := range r.rules {
		if len(rule.keywords) > 0 && !containsAny(lower, rule.keywords) {
			continue
		}
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			if r.allowed(text[loc[0]:loc[1]]) {
				continue
			}
			findings = append(findings, Finding{RuleID: rule.id, Start: loc[0], End: loc[1]})
		}
	}
	if len(findings) == 0 {
		return Result{Text: text}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, span := range mergeSpans(findings) {
		b.WriteString(text[pos:span[0]])
		b.WriteString(r.replacement)
		pos = span[1]
	}
	b.WriteString(text[pos:])

	return Result{Text: b.String(), Findings: findings}
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans collapses sorted, possibly overlapping findings into disjoint
// [start, end) spans.
func mergeSpans(findings []Finding) [][2]int {
	var spans [][2]int
	for _, f := range findings {
		if n := len(spans); n > 0 && f.Start <= spans[n-1][1] {
			if f.End > spans[n-1][1] {
				spans[n-1][1] = f.End
			}
			continue
		}
		spans = append(spans, [2]int{f.Start, f.End})
	}
	return spans
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
