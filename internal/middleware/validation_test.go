package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChatMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"valid", "hello", false},
		{"empty", "", true},
		{"max length", strings.Repeat("a", 1000), false},
		{"too long", strings.Repeat("a", 1001), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatMessage(tt.message)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConversationID(t *testing.T) {
	assert.NoError(t, ValidateConversationID("0d230d12-38a4-4f39-92bd-1e6911afeb62"))
	assert.Error(t, ValidateConversationID("not-a-uuid"))
	assert.Error(t, ValidateConversationID(""))
}

func TestValidateEnvironmentID(t *testing.T) {
	assert.NoError(t, ValidateEnvironmentID("demo-env_01"))
	assert.Error(t, ValidateEnvironmentID(""))
	assert.Error(t, ValidateEnvironmentID(strings.Repeat("x", 65)))
	assert.Error(t, ValidateEnvironmentID("bad/path"))
	assert.Error(t, ValidateEnvironmentID("dots..too"))
}
