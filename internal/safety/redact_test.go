package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII_Modes(t *testing.T) {
	text := "mail john@example.com, ssn 123-45-6789"
	matches := DetectPII(text)

	tests := []struct {
		name string
		cfg  RedactionConfig
		want string
	}{
		{"mask default", RedactionConfig{}, "mail jo************om, ssn 12*******89"},
		{"mask keep none", RedactionConfig{KeepChars: KeepNone, MaskChar: "#"}, "mail ################, ssn ###########"},
		{"remove", RedactionConfig{Mode: ModeRemove}, "mail , ssn "},
		{"placeholder", RedactionConfig{Mode: ModePlaceholder}, "mail [EMAIL], ssn [SSN]"},
		{"custom placeholder", RedactionConfig{Mode: ModePlaceholder, Placeholder: "<{TYPE} hidden>"}, "mail <EMAIL hidden>, ssn <SSN hidden>"},
		{"type filter", RedactionConfig{Mode: ModePlaceholder, Types: []PIIType{PIISSN}}, "mail john@example.com, ssn [SSN]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactPII(text, matches, tt.cfg))
		})
	}
}

func TestRedactPII_ShortValueMaskedFully(t *testing.T) {
	text := "id abcd end"
	m := []PIIMatch{{Type: "custom", Value: "abcd", Start: 3, End: 7}}
	assert.Equal(t, "id **** end", RedactPII(text, m, RedactionConfig{}))
}

func TestRedactPII_MaskCountsRunes(t *testing.T) {
	text := "имя Анастасия"
	m := []PIIMatch{{Type: "name", Value: "Анастасия", Start: len("имя "), End: len(text)}}
	assert.Equal(t, "имя Ан*****ия", RedactPII(text, m, RedactionConfig{}))
}

func TestRedactPII_OverlapsMerged(t *testing.T) {
	text := "x 0123456789 y"
	m := []PIIMatch{
		{Type: "a", Value: "012345", Start: 2, End: 8},
		{Type: "b", Value: "456789", Start: 6, End: 12},
	}
	assert.Equal(t, "x [A] y", RedactPII(text, m, RedactionConfig{Mode: ModePlaceholder}))
}

func TestRedactPII_NoMatches(t *testing.T) {
	assert.Equal(t, "plain", RedactPII("plain", nil, RedactionConfig{Mode: ModeRemove}))
}
