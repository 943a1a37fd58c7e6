package mi

import (
	"html"
	"strings"

	"github.com/sirion/mi/mime"
	"github.com/sirion/mi/status"
)

// A Handler serves the requests it matches. The server asks handlers in registration
// order and hands the request to the first one whose Matches returns true; later
// handlers are never consulted for that request.
type Handler interface {
	Matches(*Request) bool
	Handle(*Request, *Response)
}

// MatchFunc decides whether a handler is responsible for a request.
type MatchFunc func(*Request) bool

// HandleFunc serves a request.
type HandleFunc func(*Request, *Response)

// NewHandler combines a matcher and a handling function into a Handler.
func NewHandler(match MatchFunc, handle HandleFunc) Handler {
	return funcHandler{match: match, handle: handle}
}

type funcHandler struct {
	match  MatchFunc
	handle HandleFunc
}

func (h funcHandler) Matches(req *Request) bool {
	return h.match(req)
}

func (h funcHandler) Handle(req *Request, res *Response) {
	h.handle(req, res)
}

// Always matches every request. Handlers registered after one using it are
// unreachable.
func Always() MatchFunc {
	return func(*Request) bool { return true }
}

// PathIs matches requests whose path, query excluded, equals path.
func PathIs(path string) MatchFunc {
	return func(req *Request) bool { return req.Path() == path }
}

// PathPrefix matches requests whose URI starts with prefix.
func PathPrefix(prefix string) MatchFunc {
	return func(req *Request) bool { return strings.HasPrefix(req.URI, prefix) }
}

func MethodIs(method string) MatchFunc {
	return func(req *Request) bool { return req.Method == method }
}

// All matches when every given matcher does.
func All(matchers ...MatchFunc) MatchFunc {
	return func(req *Request) bool {
		for _, match := range matchers {
			if !match(req) {
				return false
			}
		}

		return true
	}
}

// NotFound is the handler that runs when nothing else matches.
var NotFound Handler = NewHandler(Always(), notFound)

func notFound(req *Request, res *Response) {
	res.Status = status.NotFound
	res.Headers.Set("Content-Type", mime.HTML)
	_, _ = res.WriteString("Not found: ")
	_, _ = res.WriteString(html.EscapeString(req.URI))
	if err := res.End(); err != nil {
		res.errLog.Printf("Error writing to response in default handler: %v", err)
	}
}

// chain is the ordered handler list. It is append-only while configuring and read-only
// while serving.
type chain []Handler

// match returns the first handler that matches, or nil.
func (c chain) match(req *Request) Handler {
	for _, h := range c {
		if h.Matches(req) {
			return h
		}
	}

	return nil
}
