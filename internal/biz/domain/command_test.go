package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_PrefixStripsTriggerAndPunctuation(t *testing.T) {
	cmd := Command{Name: "!draw", Trigger: TriggerPrefix}

	arg, ok := cmd.Match("!draw   hello, world")
	require.True(t, ok)
	assert.Equal(t, "hello, world", arg)

	arg, ok = cmd.Match("!DRAW,\t a cat\r\n")
	require.True(t, ok, "prefix match is case-insensitive")
	assert.Equal(t, "a cat", arg)
}

func TestCommand_PrefixEmptyArgument(t *testing.T) {
	cmd := Command{Name: "!reset", Trigger: TriggerPrefix}

	arg, ok := cmd.Match("!reset  ,, ")
	require.True(t, ok)
	assert.Empty(t, arg)
}

func TestCommand_AltNameNonLatin(t *testing.T) {
	cmd := Command{Name: "!baza", AltName: "!база", Trigger: TriggerPrefix}

	arg, ok := cmd.Match("!БАЗА тест")
	require.True(t, ok)
	assert.Equal(t, "тест", arg)
}

func TestCommand_SubstringPassesFullText(t *testing.T) {
	cmd := Command{Name: "matie", AltName: "матье", Trigger: TriggerSubstring}

	text := "hey Matie, how are you?"
	arg, ok := cmd.Match(text)
	require.True(t, ok)
	assert.Equal(t, text, arg)

	_, ok = cmd.Match("nothing here")
	assert.False(t, ok)
}

func TestCommand_EmptyTextNeverMatches(t *testing.T) {
	prefix := Command{Name: "!ping", Trigger: TriggerPrefix}
	substr := Command{Name: "x", Trigger: TriggerSubstring}

	_, ok := prefix.Match("")
	assert.False(t, ok)
	_, ok = substr.Match("")
	assert.False(t, ok)
}
