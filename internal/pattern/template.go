// Package pattern discovers and verifies company email-address formats.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// CommonTemplates are the statistically common fallback patterns, most
// frequent first. Used only when every provider tier exhausts; results are
// marked unverified.
var CommonTemplates = []string{
	"{first}.{last}",
	"{first}{last}",
	"{f}{last}",
	"{first}",
}

var placeholderRe = regexp.MustCompile(`\{(first|last|f|l)\}`)

// ValidTemplate reports whether a template contains at least one known
// placeholder and nothing that can't appear in an address local part.
func ValidTemplate(tmpl string) bool {
	if tmpl == "" || !placeholderRe.MatchString(tmpl) {
		return false
	}
	stripped := placeholderRe.ReplaceAllString(tmpl, "")
	return !strings.ContainsAny(stripped, " @{}")
}

var localPartStripRe = regexp.MustCompile(`[^a-z0-9]`)

// namePart lowercases a name component and strips everything an address
// local part can't carry.
func namePart(s string) string {
	return localPartStripRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

// Render expands a pattern template for a person and domain, e.g.
// ("{first}.{last}", "John", "Smith", "acme.com") → "john.smith@acme.com".
func Render(tmpl, first, last, domain string) (string, error) {
	if !ValidTemplate(tmpl) {
		return "", fmt.Errorf("pattern: invalid template %q", tmpl)
	}
	f := namePart(first)
	l := namePart(last)
	if f == "" && l == "" {
		return "", fmt.Errorf("pattern: no name parts to render")
	}

	local := tmpl
	local = strings.ReplaceAll(local, "{first}", f)
	local = strings.ReplaceAll(local, "{last}", l)
	if f != "" {
		local = strings.ReplaceAll(local, "{f}", f[:1])
	} else {
		local = strings.ReplaceAll(local, "{f}", "")
	}
	if l != "" {
		local = strings.ReplaceAll(local, "{l}", l[:1])
	} else {
		local = strings.ReplaceAll(local, "{l}", "")
	}

	if local == "" {
		return "", fmt.Errorf("pattern: template %q rendered empty", tmpl)
	}
	return local + "@" + strings.ToLower(domain), nil
}

// SplitName best-effort splits a full name into first and last components.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
