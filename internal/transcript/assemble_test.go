package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleNormalizesWhitespaceAndTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{" hello", "world  ", "\nfrom", "v2m"}, Options{TrailingSpace: true})
	require.Equal(t, "hello world from v2m ", got)
}

func TestAssembleWithoutTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"hello", "world"}, Options{})
	require.Equal(t, "hello world", got)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(nil, Options{TrailingSpace: true}))
}

func TestAssembleSkipsWhitespaceOnlySegments(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"  ", "\n\t", "hello"}, Options{})
	require.Equal(t, "hello", got)
}

func TestAssembleIdempotentForNormalizedOutput(t *testing.T) {
	t.Parallel()

	first := Assemble([]string{"hello", "world"}, Options{})
	second := Assemble([]string{first}, Options{})
	require.Equal(t, first, second)
}

func TestAssembleCapitalizesSentences(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"hello world. this is v2m"}, Options{CapitalizeSentences: true})
	require.Equal(t, "Hello world. This is v2m", got)
}
