package moderation

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testModerator(t *testing.T, words []string) *Moderator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewModerator(log, words, '*')
	require.NoError(t, err)
	return m
}

func TestModerator_Censor(t *testing.T) {
	m := testModerator(t, []string{"idiot", "moron"})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean text untouched",
			input:    "hello there, how are you",
			expected: "hello there, how are you",
		},
		{
			name:     "plain hit",
			input:    "you idiot",
			expected: "you *****",
		},
		{
			name:     "case insensitive",
			input:    "you IDIOT",
			expected: "you *****",
		},
		{
			name:     "leet speak",
			input:    "you 1d10t",
			expected: "you *****",
		},
		{
			name:     "punctuation inside the word",
			input:    "you i.d.i.o.t",
			expected: "you *********",
		},
		{
			name:     "several hits",
			input:    "idiot and moron",
			expected: "***** and *****",
		},
		{
			name:     "empty body",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation only",
			input:    "!!! ...",
			expected: "!!! ...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, m.Censor(tt.input))
		})
	}
}

func TestModerator_Censor_Preserves_Surrounding_Text(t *testing.T) {
	req := require.New(t)
	m := testModerator(t, []string{"idiot"})

	censored := m.Censor("dear idiot, see you tomorrow")

	req.Equal("dear *****, see you tomorrow", censored)
	req.Equal(len([]rune("dear idiot, see you tomorrow")), len([]rune(censored)))
}

func TestLoadCensoredWords(t *testing.T) {
	req := require.New(t)

	data, err := LoadCensoredWords()
	req.NoError(err)
	req.NotEmpty(data.Words)

	// One language per embedded dictionary file
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")

	// Words are unique
	seen := map[string]struct{}{}
	for _, w := range data.Words {
		_, dup := seen[strings.ToLower(w)]
		req.False(dup, "duplicate word %q", w)
		seen[strings.ToLower(w)] = struct{}{}
	}
}
