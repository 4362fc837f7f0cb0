package substrate

import "regexp"

// secretPatterns match common credential shapes so writers can redact them
// before content touches disk, per spec §4.4 ("detects secrets (api keys,
// bearer tokens, private-key PEM markers)").
var secretPatterns = []*regexp.Regexp{
	// Anthropic / OpenAI style API keys.
	regexp.MustCompile(`sk-(?:ant|proj|live)?-[A-Za-z0-9_\-]{10,}`),
	// Bearer tokens in Authorization-header-like text.
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.~+/]{10,}=*`),
	// Generic KEY=value / "key": "value" secrets for common credential names.
	regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|secret)\s*[:=]\s*['"]?[A-Za-z0-9_\-./+]{10,}['"]?`),
	// PEM private key blocks (entire block, DOTALL via [\s\S]).
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |)PRIVATE KEY-----[\s\S]*?-----END (?:RSA |EC |OPENSSH |)PRIVATE KEY-----`),
}

const redactedPlaceholder = "[REDACTED]"

// RedactSecrets scans s for known credential shapes and replaces each match
// with a placeholder. Returns the redacted text and whether any redaction
// occurred, so callers can additionally warn via a logger per spec §4.4.
func RedactSecrets(s string) (redacted string, found bool) {
	redacted = s
	for _, p := range secretPatterns {
		if p.MatchString(redacted) {
			found = true
			redacted = p.ReplaceAllString(redacted, redactedPlaceholder)
		}
	}
	return redacted, found
}
