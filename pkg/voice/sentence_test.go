package voice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name      string
		buf       string
		sentences []string
		rest      string
	}{
		{"empty", "", nil, ""},
		{"no terminator", "Hello there", nil, "Hello there"},
		{"terminator at end waits for space", "Hello there.", nil, "Hello there."},
		{"one sentence", "Hello there. How", []string{"Hello there. "}, "How"},
		{"mixed punctuation", "Yes! Really? Ok. ", []string{"Yes! ", "Really? ", "Ok. "}, ""},
		{"abbreviation splits", "Mr. Smith", []string{"Mr. "}, "Smith"},
		{"decimal kept", "Pi is 3.14 roughly", nil, "Pi is 3.14 roughly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences, rest := splitSentences(tt.buf)
			assert.Equal(t, tt.sentences, sentences)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestSplitSentences_Lossless(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		buf := rapid.StringOf(rapid.SampledFrom([]rune("ab .!?"))).Draw(rt, "buf")
		sentences, rest := splitSentences(buf)

		if got := strings.Join(sentences, "") + rest; got != buf {
			rt.Fatalf("rejoined %q, want %q", got, buf)
		}
		for _, s := range sentences {
			if !strings.HasSuffix(s, ". ") && !strings.HasSuffix(s, "! ") && !strings.HasSuffix(s, "? ") {
				rt.Fatalf("sentence %q lacks a terminator", s)
			}
		}
	})
}
