package status

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	t.Run("known", func(t *testing.T) {
		require.Equal(t, "OK", Text(OK))
		require.Equal(t, "Not Found", Text(404))
		require.Equal(t, "I'm a teapot", Text(Teapot))
		require.Equal(t, "Network Connect Timeout Error", Text(599))
	})

	t.Run("unknown", func(t *testing.T) {
		for _, code := range []Code{0, 1, 199, 306, 999, 65535} {
			require.Equal(t, Unknown, Text(code))
		}
	})

	t.Run("every known code has a phrase", func(t *testing.T) {
		require.Len(t, reasons, len(KnownCodes))
		for _, code := range KnownCodes {
			require.NotEqual(t, Unknown, Text(code), "code %d", code)
		}
	})

	t.Run("known codes are sorted", func(t *testing.T) {
		require.True(t, sort.SliceIsSorted(KnownCodes, func(i, j int) bool {
			return KnownCodes[i] < KnownCodes[j]
		}))
	})
}

func TestIsError(t *testing.T) {
	require.False(t, IsError(OK))
	require.False(t, IsError(PermanentRedirect))
	require.True(t, IsError(BadRequest))
	require.True(t, IsError(InternalServerError))
}
