package mi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
	MethodPatch   = "PATCH"
)

// DefaultMaxHeaderBytes bounds the header block when the server does not set its own
// limit.
const DefaultMaxHeaderBytes = 1 << 20

// chunkSize is the size of every read from the socket, both while framing the header
// block and while completing the body.
const chunkSize = 1024

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
)

// Request is an incoming request. Headers and Query are fully populated by the time a
// handler sees it; the body may still be partially on the wire and is completed by Body.
type Request struct {
	Method  string
	URI     string
	Version string

	// Headers has case handling enabled, so any casing of a key finds the value.
	Headers *ValuesMap
	// Query holds the parameters of the URI. Keys are case-sensitive.
	Query *ValuesMap

	RemoteAddr string

	ctx          context.Context
	src          io.Reader
	body         []byte
	bodyLength   int
	readBytes    int
	headerLength int
}

// NewRequest builds a request that is not bound to any connection. Useful for
// exercising handlers directly.
func NewRequest(method, uri string) *Request {
	req := &Request{
		Method:  method,
		URI:     uri,
		Version: "HTTP/1.1",
		Headers: NewValuesMap(true),
		Query:   NewValuesMap(false),
	}
	parseQuery(uri, req.Query, nil)

	return req
}

// ReadRequest reads and parses a request header block from src. The body is left on
// src and read on demand by Body.
func ReadRequest(src io.Reader) (*Request, error) {
	return readRequest(src, DefaultMaxHeaderBytes, nil)
}

func readRequest(
	src io.Reader, maxHeaderBytes int, warnf func(format string, args ...interface{}),
) (*Request, error) {
	head, rest, read, err := frameHeader(src, maxHeaderBytes)
	if err != nil {
		return nil, err
	}

	lines := splitLines(string(head))
	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return nil, malformed(ErrMalformedRequest, "mi: malformed request line %q", lines[0])
	}

	req := &Request{
		Method:       fields[0],
		URI:          fields[1],
		Version:      fields[2],
		Headers:      NewValuesMap(true),
		Query:        NewValuesMap(false),
		src:          src,
		body:         rest,
		readBytes:    read,
		headerLength: read - len(rest),
	}

	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, malformed(ErrMalformedRequest, "mi: malformed header line %q", line)
		}

		req.Headers.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	parseQuery(req.URI, req.Query, warnf)
	req.bodyLength = contentLength(req.Headers)

	return req, nil
}

// frameHeader reads chunks until the end of the header block. It returns the block
// without its delimiter, the body bytes that arrived along with it and the total number
// of bytes read.
func frameHeader(src io.Reader, limit int) (head, rest []byte, read int, err error) {
	buf := make([]byte, 0, chunkSize)
	chunk := make([]byte, chunkSize)

	for {
		// a delimiter may straddle two chunks
		from := len(buf) - len(crlfcrlf) + 1
		if from < 0 {
			from = 0
		}

		n, rerr := src.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if end, size := headerEnd(buf, from); end >= 0 {
			return buf[:end], buf[end+size:], len(buf), nil
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				rerr = io.ErrUnexpectedEOF
			}

			return nil, nil, len(buf), ioFailure("read header", rerr)
		}

		if limit > 0 && len(buf) > limit {
			return nil, nil, len(buf), malformed(
				errHeaderBlockTooLarge, "mi: header block exceeds %d bytes", limit,
			)
		}
	}
}

// headerEnd looks for CRLFCRLF and falls back to LFLF for clients that omit carriage
// returns. It returns the delimiter offset and length, or -1.
func headerEnd(buf []byte, from int) (int, int) {
	if i := bytes.Index(buf[from:], crlfcrlf); i >= 0 {
		return from + i, len(crlfcrlf)
	}

	if i := bytes.Index(buf[from:], lflf); i >= 0 {
		return from + i, len(lflf)
	}

	return -1, 0
}

func splitLines(head string) []string {
	lines := strings.Split(head, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}

func parseQuery(uri string, into *ValuesMap, warnf func(format string, args ...interface{})) {
	_, raw, found := strings.Cut(uri, "?")
	if !found || len(raw) == 0 {
		return
	}

	for _, pair := range strings.Split(raw, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if len(key) == 0 {
			if warnf != nil {
				warnf("Skipping malformed query pair %q in %s", pair, uri)
			}

			continue
		}

		into.Add(key, value)
	}
}

// contentLength never fails: a missing or unparsable header means no body.
func contentLength(headers *ValuesMap) int {
	value, found := headers.Get("Content-Length")
	if !found {
		return 0
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// Body reads the remainder of the body from the connection, if any, and returns it.
// Reads block until the declared Content-Length is reached or the connection's read
// deadline expires.
func (r *Request) Body() ([]byte, error) {
	var chunk []byte

	for r.src != nil && r.readBytes-r.headerLength < r.bodyLength {
		if chunk == nil {
			chunk = make([]byte, chunkSize)
		}

		n, err := r.src.Read(chunk)
		r.body = append(r.body, chunk[:n]...)
		r.readBytes += n

		if err != nil {
			if errors.Is(err, io.EOF) {
				if r.readBytes-r.headerLength >= r.bodyLength {
					break
				}

				err = io.ErrUnexpectedEOF
			}

			return nil, ioFailure("read body", err)
		}
	}

	if len(r.body) > r.bodyLength {
		r.body = r.body[:r.bodyLength]
	}

	return r.body, nil
}

// ContentLength returns the declared body length.
func (r *Request) ContentLength() int {
	return r.bodyLength
}

// Header returns the last value of the header, or an empty string.
func (r *Request) Header(key string) string {
	return r.Headers.Value(key)
}

// Path returns the URI without its query component.
func (r *Request) Path() string {
	path, _, _ := strings.Cut(r.URI, "?")
	return path
}

// Context returns the request context. It is cancelled once the handler returns.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}

	return r.ctx
}
