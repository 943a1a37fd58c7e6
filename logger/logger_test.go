package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, Warn)

		l.Errorf("disk %s is full", "sda")
		l.Warnf("cache miss")
		l.Infof("hidden info")
		l.Debugf("hidden debug")

		out := buf.String()
		require.Contains(t, out, "disk sda is full")
		require.Contains(t, out, "cache miss")
		require.NotContains(t, out, "hidden")
		require.Equal(t, 2, strings.Count(out, "\n"))
	})

	t.Run("log with explicit level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, Debug)

		l.Log(Debug, "debug message")
		l.Log(Silent, "never")
		require.Contains(t, buf.String(), "debug message")
		require.NotContains(t, buf.String(), "never")
	})

	t.Run("set level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, Error)
		l.Infof("before")
		l.SetLevel(Info)
		l.Infof("after")

		require.Equal(t, Info, l.Level())
		require.NotContains(t, buf.String(), "before")
		require.Contains(t, buf.String(), "after")
	})

	t.Run("nil and nop discard", func(t *testing.T) {
		var l *Logger
		require.NotPanics(t, func() { l.Errorf("nothing") })
		require.False(t, l.Enabled(Error))
		require.NotPanics(t, func() { Nop().Errorf("nothing") })
	})
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{Silent, Error, Warn, Info, Debug} {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		require.Equal(t, l, parsed)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}
