package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	cases := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@ex.com", "Jane", "Doe"},
		{"jane@ex.com", "Jane", "Customer"},
		{"j_van-der.berg@ex.com", "J", "Berg"},
		{"@ex.com", "Customer", "Customer"},
	}

	for _, tc := range cases {
		first, last := DeriveNameFromEmail(tc.email)
		assert.Equal(t, tc.first, first, tc.email)
		assert.Equal(t, tc.last, last, tc.email)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("jane@ex.com"))
	assert.True(t, Valid("jane+tag@sub.ex.com"))
	assert.False(t, Valid("jane"))
	assert.False(t, Valid("jane@"))
	assert.False(t, Valid("@ex.com"))
	assert.False(t, Valid("jane@excom"))
	assert.False(t, Valid("jane doe@ex.com"))
}
