package secrets

// DefaultRules covers the credentials people most often paste while
// describing a project: model provider keys, cloud and VCS tokens, payment
// keys, private keys and inline key=value secrets.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "anthropic-api-key",
			Pattern: `sk-ant-[A-Za-z0-9_\-]{20,}`,
		},
		{
			ID:      "openai-api-key",
			Pattern: `sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`,
		},
		{
			ID:      "aws-access-key-id",
			Pattern: `\b(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}\b`,
		},
		{
			ID:      "github-token",
			Pattern: `\bgh[pousr]_[A-Za-z0-9]{36,}\b`,
		},
		{
			ID:      "github-fine-grained-token",
			Pattern: `\bgithub_pat_[A-Za-z0-9_]{40,}\b`,
		},
		{
			ID:      "stripe-key",
			Pattern: `\b(?:sk|rk|pk)_(?:live|test)_[A-Za-z0-9]{16,}\b`,
		},
		{
			ID:      "slack-token",
			Pattern: `\bxox[abprs]-[A-Za-z0-9\-]{10,}\b`,
		},
		{
			ID:      "google-api-key",
			Pattern: `\bAIza[A-Za-z0-9_\-]{35}\b`,
		},
		{
			ID:      "private-key",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?(?:-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----|$)`,
		},
		{
			ID:      "bearer-token",
			Pattern: `(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{16,}`,
		},
		{
			ID:       "inline-secret",
			Pattern:  `(?i)\b(?:api[_-]?key|secret|token|password|passwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"key", "secret", "token", "pass"},
		},
	}
}
