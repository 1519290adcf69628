package appconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Environment
	}{
		{"production", Production},
		{"prod", Production},
		{"PRODUCTION", Production},
		{"test", Test},
		{" test ", Test},
		{"development", Development},
		{"", Development},
		{"anything-else", Development},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, EnvFromString(tt.input))
		})
	}
}

func TestEnvironmentString(t *testing.T) {
	assert.Equal(t, "production", Production.String())
	assert.Equal(t, "test", Test.String())
	assert.Equal(t, "development", Development.String())
}
