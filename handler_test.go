package mi

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sirion/mi/status"
)

type namedHandler struct {
	match MatchFunc
	name  string
}

func (h *namedHandler) Matches(req *Request) bool {
	return h.match(req)
}

func (h *namedHandler) Handle(_ *Request, res *Response) {
	_, _ = res.WriteString(h.name)
	_ = res.End()
}

func TestChainFirstMatch(t *testing.T) {
	a := &namedHandler{Always(), "A"}
	b := &namedHandler{Always(), "B"}
	handlers := chain{a, b}

	for _, uri := range []string{"/", "/anything", "/a/b?c=d"} {
		require.Same(t, a, handlers.match(NewRequest(MethodGet, uri)))
	}
}

func TestChainSkipsNonMatching(t *testing.T) {
	api := &namedHandler{PathPrefix("/api/"), "api"}
	post := &namedHandler{MethodIs(MethodPost), "post"}
	handlers := chain{api, post}

	require.Same(t, api, handlers.match(NewRequest(MethodPost, "/api/x")))
	require.Same(t, post, handlers.match(NewRequest(MethodPost, "/other")))
	require.Nil(t, handlers.match(NewRequest(MethodGet, "/other")))
	require.Nil(t, chain(nil).match(NewRequest(MethodGet, "/")))
}

func TestMatchers(t *testing.T) {
	req := NewRequest(MethodPut, "/files/report.txt?v=2")

	require.True(t, PathIs("/files/report.txt")(req))
	require.False(t, PathIs("/files")(req))
	require.True(t, PathPrefix("/files/")(req))
	require.False(t, PathPrefix("/api")(req))
	require.True(t, MethodIs(MethodPut)(req))
	require.False(t, MethodIs(MethodGet)(req))

	require.True(t, All(MethodIs(MethodPut), PathPrefix("/files"))(req))
	require.False(t, All(MethodIs(MethodPut), PathPrefix("/api"))(req))
	require.True(t, All()(req))
}

func TestNotFound(t *testing.T) {
	conn := newMockConn("")
	logs := new(lockedBuffer)
	sink := NewSink(logs)

	req := NewRequest(MethodGet, "/nowhere?x=1")
	res := NewResponse(conn, req, sink)

	require.True(t, NotFound.Matches(req))
	NotFound.Handle(req, res)
	require.NoError(t, sink.Close())

	require.True(t, res.Closed())
	require.Equal(t, status.NotFound, res.Status)
	require.Equal(t,
		"HTTP/1.1 404 Not Found\r\nContent-Type: text/html\r\nContent-Length: 23\r\n\r\nNot found: /nowhere?x=1",
		conn.out.String(),
	)
	require.Contains(t, logs.String(), "Error 404 Not Found, for GET /nowhere?x=1")
}

func TestNotFoundEscapesURI(t *testing.T) {
	conn := newMockConn("")
	sink := NewSink(nil)
	defer sink.Close()

	req := NewRequest(MethodGet, "/<script>alert(1)</script>?a=1&b=2")
	NotFound.Handle(req, NewResponse(conn, req, sink))

	res := parseResponse(t, conn.out.String())
	require.Equal(t, "HTTP/1.1 404 Not Found", res.status)
	require.Equal(t, "Not found: /&lt;script&gt;alert(1)&lt;/script&gt;?a=1&amp;b=2", res.body)
	require.Equal(t, strconv.Itoa(len(res.body)), res.headers["Content-Length"])
}
