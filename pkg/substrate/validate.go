package substrate

import "strings"

// Validate applies the validation rule for identifier id to content per
// spec §3: non-empty, must start with a "# " heading; PLAN additionally
// requires a "## Tasks" section.
func Validate(id Identifier, content string) error {
	if strings.TrimSpace(content) == "" {
		return newErr(KindInvalidContent, string(id), "content must not be empty", nil)
	}
	if !strings.HasPrefix(strings.TrimLeft(content, "\n"), "# ") {
		return newErr(KindInvalidContent, string(id), "content must start with a '# ' heading", nil)
	}
	if id == PLAN && !strings.Contains(content, "## Tasks") {
		return newErr(KindInvalidContent, string(id), "PLAN content must contain a '## Tasks' section", nil)
	}
	return nil
}
