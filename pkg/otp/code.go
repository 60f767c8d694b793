// Package otp models the six-cell one-time-code entry widget and generates
// backend-issued codes. The buffer mirrors the UI contract exactly: a digit
// per cell, focus advancing on entry, backspace walking backwards on empty
// cells, and submission possible only once every cell is filled. Keeping the
// assembly rules here means an incomplete code is rejected locally and never
// turns into a provider call.
package otp

import (
	"crypto/rand"
	"math/big"
	"strings"

	dErrors "enroll/pkg/domain-errors"
)

// CodeLength is the number of digit cells in a verification code.
const CodeLength = 6

// Buffer holds the state of the six independent single-character fields.
// The zero value is an empty buffer with focus on the first cell.
type Buffer struct {
	cells [CodeLength]byte // 0 means empty
}

// SetDigit writes a digit into cell i and returns the cell focus should move
// to. Non-digit input is a local validation error and leaves the buffer
// untouched.
func (b *Buffer) SetDigit(i int, ch byte) (int, error) {
	if i < 0 || i >= CodeLength {
		return i, dErrors.Newf(dErrors.CodeInvalidInput, "code cell %d out of range", i)
	}
	if ch < '0' || ch > '9' {
		return i, dErrors.New(dErrors.CodeInvalidInput, "code cells accept digits only")
	}
	b.cells[i] = ch
	if i < CodeLength-1 {
		return i + 1, nil
	}
	return i, nil
}

// Backspace clears cell i and returns the cell focus should move to. On an
// already-empty cell it moves focus to the previous cell and clears that one,
// matching the entry widget's behavior.
func (b *Buffer) Backspace(i int) int {
	if i < 0 || i >= CodeLength {
		return 0
	}
	if b.cells[i] != 0 {
		b.cells[i] = 0
		return i
	}
	if i > 0 {
		b.cells[i-1] = 0
		return i - 1
	}
	return 0
}

// Complete reports whether every cell holds a digit.
func (b *Buffer) Complete() bool {
	for _, c := range b.cells {
		if c == 0 {
			return false
		}
	}
	return true
}

// Code returns the ordered concatenation of all cells. An incomplete buffer
// is a validation error; callers must not contact the network in that case.
func (b *Buffer) Code() (string, error) {
	if !b.Complete() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification code is incomplete")
	}
	return string(b.cells[:]), nil
}

// Reset clears all cells.
func (b *Buffer) Reset() {
	b.cells = [CodeLength]byte{}
}

// Valid reports whether s is a well-formed submitted code: exactly CodeLength
// digits. Used at the transport boundary where the assembled string arrives.
func Valid(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Generate returns a uniformly random CodeLength-digit code for the backend
// OTP fallback channel. Uses crypto/rand; never math/rand.
func Generate() (string, error) {
	var sb strings.Builder
	sb.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
