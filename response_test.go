package mi

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sirion/mi/status"
)

func newTestResponse(uri string) (*Response, *mockConn, *Sink, *lockedBuffer) {
	conn := newMockConn("")
	logs := new(lockedBuffer)
	sink := NewSink(logs)

	return NewResponse(conn, NewRequest(MethodGet, uri), sink), conn, sink, logs
}

func TestResponseEnd(t *testing.T) {
	res, conn, sink, _ := newTestResponse("/")
	defer sink.Close()

	res.Headers.Set("Content-Type", "text/plain")
	_, err := res.WriteString("hello")
	require.NoError(t, err)
	require.Empty(t, conn.out.String(), "nothing leaves before End")

	require.NoError(t, res.End())
	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello",
		conn.out.String(),
	)

	require.True(t, res.Closed())
	require.True(t, res.HeadersSent())
	require.True(t, conn.writeClosed)
	require.True(t, conn.readClosed)
	require.Equal(t, 1, conn.closed)
}

func TestResponseFinalize(t *testing.T) {
	t.Run("after end is a no-op", func(t *testing.T) {
		res, conn, sink, logs := newTestResponse("/")

		_, _ = res.WriteString("once")
		require.NoError(t, res.End())
		sent := conn.out.String()

		res.Finalize()
		res.Finalize()
		require.NoError(t, sink.Close())

		require.Equal(t, sent, conn.out.String())
		require.Equal(t, 1, conn.closed)
		require.Empty(t, logs.String())
	})

	t.Run("ends a forgotten response", func(t *testing.T) {
		res, conn, sink, _ := newTestResponse("/")
		defer sink.Close()

		_, _ = res.WriteString("partial")
		res.Finalize()

		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\npartial", conn.out.String())
		require.True(t, res.Closed())
		require.Equal(t, 1, conn.closed)
	})
}

func TestResponseAfterClose(t *testing.T) {
	res, conn, sink, logs := newTestResponse("/gone")

	require.NoError(t, res.End())
	sent := conn.out.String()

	n, err := res.WriteString("late")
	require.Zero(t, n)
	require.True(t, errors.Is(err, ErrNotConnected))

	_, err = res.Write([]byte("late"))
	require.True(t, errors.Is(err, ErrNotConnected))
	require.True(t, errors.Is(res.Send(), ErrNotConnected))
	require.True(t, errors.Is(res.End(), ErrNotConnected))
	require.True(t, errors.Is(res.JSON(map[string]int{"a": 1}), ErrNotConnected))

	require.Zero(t, res.body.Len())
	require.Equal(t, sent, conn.out.String())
	require.Equal(t, 1, conn.closed)

	require.NoError(t, sink.Close())
	require.Contains(t, logs.String(), "Write to closed connection ignored for GET /gone")
}

func TestResponseStreaming(t *testing.T) {
	res, conn, sink, _ := newTestResponse("/")
	defer sink.Close()

	_, _ = res.WriteString("first ")
	require.NoError(t, res.Send())
	require.Equal(t, "HTTP/1.1 200 OK\r\n\r\nfirst ", conn.out.String())
	require.Zero(t, conn.closed)

	_, _ = res.WriteString("second")
	require.NoError(t, res.End())

	out := conn.out.String()
	require.Equal(t, "HTTP/1.1 200 OK\r\n\r\nfirst second", out)
	require.Equal(t, 1, strings.Count(out, "HTTP/1.1"))
	require.NotContains(t, out, "Content-Length")
}

func TestResponseClear(t *testing.T) {
	res, conn, sink, _ := newTestResponse("/")
	defer sink.Close()

	_, _ = res.WriteString("discarded")
	res.Clear()
	_, _ = res.WriteString("kept")
	require.NoError(t, res.End())

	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nkept", conn.out.String())
}

func TestResponseStatus(t *testing.T) {
	t.Run("custom reason", func(t *testing.T) {
		res, conn, sink, _ := newTestResponse("/")
		defer sink.Close()

		res.Status = status.Teapot
		res.Reason = "Short And Stout"
		require.NoError(t, res.End())

		require.True(t, strings.HasPrefix(conn.out.String(), "HTTP/1.1 418 Short And Stout\r\n"))
	})

	t.Run("errors are logged", func(t *testing.T) {
		res, conn, sink, logs := newTestResponse("/missing")

		require.NoError(t, res.Error(status.NotFound, "nope"))
		require.NoError(t, sink.Close())

		require.Equal(t,
			"HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\nContent-Length: 4\r\n\r\nnope",
			conn.out.String(),
		)
		require.Regexp(t, `^\d+ Error 404 Not Found, for GET /missing\n$`, logs.String())
	})

	t.Run("success is not logged", func(t *testing.T) {
		res, _, sink, logs := newTestResponse("/")

		res.Status = status.Created
		require.NoError(t, res.End())
		require.NoError(t, sink.Close())

		require.Empty(t, logs.String())
	})
}

func TestResponseJSON(t *testing.T) {
	res, conn, sink, _ := newTestResponse("/")
	defer sink.Close()

	require.NoError(t, res.JSON(map[string]interface{}{"served": 3}))
	require.NoError(t, res.End())

	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 12\r\n\r\n{\"served\":3}",
		conn.out.String(),
	)
}

func TestResponseWriteFailure(t *testing.T) {
	res, conn, sink, _ := newTestResponse("/")
	defer sink.Close()
	conn.writeErr = errBrokenPipe

	_, _ = res.WriteString("lost")
	err := res.End()
	require.True(t, errors.Is(err, errBrokenPipe))

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.True(t, res.Closed())
	require.Equal(t, 1, conn.closed, "socket released even when writing failed")
}
