package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		valid    bool
	}{
		{name: "e164", input: "+15551234567", expected: "+15551234567", valid: true},
		{name: "missing plus", input: "15551234567", expected: "+15551234567", valid: true},
		{name: "formatted", input: "+1 (555) 123-4567", expected: "+15551234567", valid: true},
		{name: "dots and spaces", input: " 44.20.7946.0958 ", expected: "+442079460958", valid: true},
		{name: "too short", input: "+12345", valid: false},
		{name: "too long", input: "+1234567890123456", valid: false},
		{name: "leading zero", input: "+0123456789", valid: false},
		{name: "letters", input: "+1555CALLNOW", valid: false},
		{name: "empty", input: "", valid: false},
		{name: "code not phone", input: "123456", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := NormalizePhone(tt.input)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}
