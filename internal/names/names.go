// pattern: Functional Core

package names

import (
	"regexp"
	"strings"
)

// DefaultName is returned by Sanitize when nothing survives sanitization.
const DefaultName = "default"

var (
	invalidChars    = regexp.MustCompile(`[^a-z0-9-]`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Sanitize converts a branch name to a stable URL-safe identifier.
// Examples:
//   - "feature/auth" -> "feature-auth"
//   - "bugfix/JIRA-123" -> "bugfix-jira-123"
//   - "feature/user_profile" -> "feature-user-profile"
//
// The result contains only [a-z0-9-], never starts or ends with a hyphen,
// and never contains consecutive hyphens. Sanitize is idempotent. If the
// input reduces to nothing, DefaultName is returned.
func Sanitize(raw string) string {
	result := strings.ToLower(raw)

	// Common separators become hyphens before stripping the rest.
	result = strings.ReplaceAll(result, "/", "-")
	result = strings.ReplaceAll(result, "_", "-")
	result = strings.ReplaceAll(result, ".", "-")

	result = invalidChars.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if result == "" {
		return DefaultName
	}
	return result
}

// IsValidName reports whether a name is acceptable for use in URLs.
// Validates externally supplied names; Sanitize output is not routed
// through here. Stricter than Sanitize in one way: the first character
// must be a letter, which DefaultName only satisfies by convention.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}

	if name[0] < 'a' || name[0] > 'z' {
		return false
	}

	for _, c := range name {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyz0123456789-", c) {
			return false
		}
	}

	if name[len(name)-1] == '-' {
		return false
	}

	return !strings.Contains(name, "--")
}
