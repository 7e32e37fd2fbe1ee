package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses whitespace", "a  b\n\nc\td", "a b c d"},
		{"strips null bytes", "a\x00b", "ab"},
		{"strips control characters", "a\x01\x02b", "ab"},
		{"keeps gujarati", "ઠરાવ ક્રમાંક  test", "ઠરાવ ક્રમાંક test"},
		{"empty", "", ""},
		{"only whitespace", " \n \t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeText(tt.input))
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ok", sanitizeUTF8("ok"))
	assert.Equal(t, "ab", sanitizeUTF8("a\xffb"))
}

func TestAlphaRatio(t *testing.T) {
	assert.Equal(t, 0.0, alphaRatio(""))
	assert.Equal(t, 1.0, alphaRatio("abc def"))
	assert.Equal(t, 0.5, alphaRatio("ab 12"))
	// garble-heavy output stays below a sane gate
	assert.Less(t, alphaRatio("$%^& *()! ab"), 0.45)
	// gujarati counts as letters, matras included
	assert.Equal(t, 1.0, alphaRatio("ઠરાવ"))
	assert.Equal(t, 1.0, alphaRatio("વિદ્યાર્થીઓને શિષ્યવૃત્તિ"))
	assert.Equal(t, 1.0, alphaRatio("शिक्षकों को वेतन"))
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2023-04-17", "2023-04-17"},
		{"17-04-2023", "2023-04-17"},
		{"17/04/2023", "2023-04-17"},
		{"7/4/2023", "2023-04-07"},
		{"17 Apr 2023", "2023-04-17"},
		{"", ""},
		{"not a date", "not a date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeDate(tt.input), "input %q", tt.input)
	}
}
