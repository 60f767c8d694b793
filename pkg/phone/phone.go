// Package phone normalizes user-entered phone numbers into E.164 form for the
// identity provider while retaining the dial-code split the account backend
// stores. Users paste numbers in every shape: with a leading +, with the dial
// code repeated, with a local trunk zero. Normalization is idempotent so a
// value that round-trips through storage can be normalized again safely.
package phone

import (
	"strings"

	dErrors "enroll/pkg/domain-errors"
)

// Number is a normalized phone number. DialCode and Local are kept separate
// because the account backend stores them as distinct profile fields; E164 is
// what the identity provider consumes.
type Number struct {
	DialCode string
	Local    string
}

// E164 renders the number in E.164 form: "+{dialCode}{localDigits}".
func (n Number) E164() string {
	return "+" + n.DialCode + n.Local
}

// Normalize produces a Number from a dial code and a raw user-entered local
// part. The algorithm, in order:
//
//  1. strip a leading "+"
//  2. if the remaining digits start with the dial code, strip that prefix
//  3. strip leading zeros from what remains (local trunk-prefix artifact)
//
// Normalize(dial, n.Local) == n for any already-normalized n.
func Normalize(dialCode, raw string) (Number, error) {
	dial := strings.TrimPrefix(strings.TrimSpace(dialCode), "+")
	if dial == "" || !digitsOnly(dial) {
		return Number{}, dErrors.New(dErrors.CodeInvalidInput, "dial code must be numeric")
	}

	local := strings.TrimSpace(raw)
	local = strings.TrimPrefix(local, "+")
	local = stripSeparators(local)
	if local == "" {
		return Number{}, dErrors.New(dErrors.CodeInvalidInput, "phone number is required")
	}
	if !digitsOnly(local) {
		return Number{}, dErrors.New(dErrors.CodeInvalidInput, "phone number must contain only digits")
	}

	if strings.HasPrefix(local, dial) && len(local) > len(dial) {
		local = local[len(dial):]
	}
	local = strings.TrimLeft(local, "0")
	if local == "" {
		return Number{}, dErrors.New(dErrors.CodeInvalidInput, "phone number is empty after normalization")
	}

	return Number{DialCode: dial, Local: local}, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// stripSeparators drops the spacing characters users type between digit
// groups. Anything else still fails the digit check afterwards.
func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}
