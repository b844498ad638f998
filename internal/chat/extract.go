package chat

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// local 8-digit numbers, four groups of two, optionally behind the +225 country code.
	// RE2 has no lookaround, so the boundaries are matched and the number is group 1;
	// digits glued to words, emails or longer digit runs are not phone numbers.
	phoneRe = regexp.MustCompile(`(?:^|[^\w@.+])((?:\+225\s?)?\d{2}\s?\d{2}\s?\d{2}\s?\d{2})(?:$|[^\d@])`)

	// trigger phrase is case-insensitive, the name itself must be capitalized
	nameRe = regexp.MustCompile(`(?i:je m['’]appelle|mon nom est|je suis)\s+(\p{Lu}\p{Ll}+(?:[ -]\p{Lu}\p{Ll}+)*)`)
)

type Contact struct {
	Email *string
	Phone *string
}

// ExtractContact returns the first email and the first phone number found in text.
func ExtractContact(text string) Contact {
	var c Contact
	if m := emailRe.FindString(text); m != "" {
		c.Email = &m
	}
	if m := phoneRe.FindStringSubmatch(text); m != nil {
		p := strings.TrimSpace(m[1])
		c.Phone = &p
	}
	return c
}

// ExtractName returns the name a visitor introduced themselves with, if any.
func ExtractName(text string) *string {
	m := nameRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	name := m[1]
	return &name
}
