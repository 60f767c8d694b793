// Package email holds small helpers for working with email identifiers
// during registration.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail guesses first and last name from the local part of an
// email address. Used to prefill the profile when a magic link is opened on a
// device where no draft exists and the user never typed a name.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Customer", "Customer"
	}

	first := capitalize(parts[0])
	last := "Customer"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// Valid is a light syntactic check used before the existence guard runs.
// Real deliverability is proven by the magic link, not by parsing.
func Valid(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.IndexByte(domain, '.') > 0 && !strings.ContainsAny(email, " \t\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
