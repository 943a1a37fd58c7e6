package mi

import (
	"bufio"
	"bytes"
	"net"
	"strconv"

	json "github.com/json-iterator/go"

	"github.com/sirion/mi/mime"
	"github.com/sirion/mi/status"
)

var crlf = []byte("\r\n")

// Response is the server side of a single exchange. Written bytes are buffered until
// Send or End; the status line and headers go out exactly once, before the first body
// byte.
//
// A Response must be finalized exactly once. End does it explicitly; the server calls
// Finalize after the handler returns, so handlers that forget to End still close the
// connection.
type Response struct {
	Status status.Code
	// Reason is derived from Status when left empty.
	Reason string
	// Headers does no case handling: keys are sent as set.
	Headers *ValuesMap

	rwc         net.Conn
	w           *bufio.Writer
	body        bytes.Buffer
	headersSent bool
	closed      bool

	method  string
	uri     string
	version string
	errLog  *Sink
}

// NewResponse binds a response to the connection the request arrived on. Errors
// (status >= 400, writes after close) are logged on errLog.
func NewResponse(rwc net.Conn, req *Request, errLog *Sink) *Response {
	return newResponse(rwc, bufio.NewWriter(rwc), req, errLog)
}

func newResponse(rwc net.Conn, w *bufio.Writer, req *Request, errLog *Sink) *Response {
	return &Response{
		Status:  status.OK,
		Headers: NewValuesMap(false),
		rwc:     rwc,
		w:       w,
		method:  req.Method,
		uri:     req.URI,
		version: req.Version,
		errLog:  errLog,
	}
}

// Write appends p to the body buffer.
func (r *Response) Write(p []byte) (int, error) {
	if r.closed {
		r.errLog.Printf("Write to closed connection ignored for %s %s", r.method, r.uri)
		return 0, ErrNotConnected
	}

	return r.body.Write(p)
}

func (r *Response) WriteString(s string) (int, error) {
	if r.closed {
		r.errLog.Printf("Write to closed connection ignored for %s %s", r.method, r.uri)
		return 0, ErrNotConnected
	}

	return r.body.WriteString(s)
}

// JSON encodes v into the body and sets the Content-Type accordingly.
func (r *Response) JSON(v interface{}) error {
	if r.closed {
		r.errLog.Printf("Write to closed connection ignored for %s %s", r.method, r.uri)
		return ErrNotConnected
	}

	stream := json.ConfigDefault.BorrowStream(&r.body)
	stream.WriteVal(v)
	err := stream.Flush()
	if err == nil {
		err = stream.Error
	}
	json.ConfigDefault.ReturnStream(stream)

	r.Headers.Set("Content-Type", mime.JSON)
	return err
}

// Clear discards buffered body bytes that were not sent yet.
func (r *Response) Clear() {
	r.body.Reset()
}

// Send writes the headers, if that did not happen yet, and everything buffered so far.
// The connection stays open, so Send may be called repeatedly to stream a body. Once
// Send has run, End no longer computes a Content-Length.
func (r *Response) Send() error {
	if r.closed {
		r.errLog.Printf("Send on closed connection for %s %s", r.method, r.uri)
		return ErrNotConnected
	}

	return r.flush()
}

// End sends whatever is left, shuts the connection down in both directions and marks
// the response closed. A second End fails with ErrNotConnected.
func (r *Response) End() error {
	if r.closed {
		r.errLog.Printf("Write to closed connection for %s %s", r.method, r.uri)
		return ErrNotConnected
	}
	r.closed = true

	if !r.headersSent {
		r.Headers.Set("Content-Length", strconv.Itoa(r.body.Len()))
	}

	err := r.flush()
	if serr := r.shutdown(); err == nil {
		err = serr
	}

	return err
}

// Finalize ends the response unless that already happened. Failures are logged rather
// than returned: nobody is left to handle them.
func (r *Response) Finalize() {
	if r.closed {
		return
	}

	if err := r.End(); err != nil {
		r.errLog.Printf("Auto ending request failed for %s: %v", r.uri, err)
	}
}

// Error replaces the buffered body with a plain-text message, sets the status and ends
// the response.
func (r *Response) Error(code status.Code, message string) error {
	r.Clear()
	r.Status = code
	r.Reason = ""
	r.Headers.Set("Content-Type", mime.Plain)
	if _, err := r.WriteString(message); err != nil {
		return err
	}

	return r.End()
}

func (r *Response) Closed() bool {
	return r.closed
}

func (r *Response) HeadersSent() bool {
	return r.headersSent
}

func (r *Response) flush() error {
	if !r.headersSent {
		if err := r.writeHeader(); err != nil {
			return err
		}
	}

	if r.body.Len() > 0 {
		_, err := r.w.Write(r.body.Bytes())
		r.body.Reset()
		if err != nil {
			return ioFailure("write body", err)
		}
	}

	return ioFailure("flush", r.w.Flush())
}

func (r *Response) writeHeader() error {
	r.headersSent = true

	if len(r.Reason) == 0 {
		r.Reason = status.Text(r.Status)
	}

	if status.IsError(r.Status) {
		r.errLog.Printf("Error %d %s, for %s %s", r.Status, r.Reason, r.method, r.uri)
	}

	head := make([]byte, 0, 256)
	head = append(head, "HTTP/1.1 "...)
	head = strconv.AppendUint(head, uint64(r.Status), 10)
	head = append(head, ' ')
	head = append(head, r.Reason...)
	head = append(head, crlf...)

	for _, key := range r.Headers.Keys() {
		values, _ := r.Headers.GetAll(key)
		for _, value := range values {
			head = append(head, key...)
			head = append(head, ": "...)
			head = append(head, value...)
			head = append(head, crlf...)
		}
	}
	head = append(head, crlf...)

	_, err := r.w.Write(head)
	return ioFailure("write header", err)
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// shutdown closes both directions and releases the socket. The socket is released
// even when the half-closes fail.
func (r *Response) shutdown() error {
	var err error
	if hc, ok := r.rwc.(halfCloser); ok {
		err = hc.CloseWrite()
		if rerr := hc.CloseRead(); err == nil {
			err = rerr
		}
	}

	if cerr := r.rwc.Close(); err == nil {
		err = cerr
	}

	return ioFailure("shutdown", err)
}
