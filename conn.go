package mi

import (
	"bufio"
	"context"
	"io"
	"net"
	"runtime"
	"sync"
	"time"

	atom "go.uber.org/atomic"
)

var bufioWriterPool sync.Pool

type ConnState int

const (
	// StateNew represents a connection that was just accepted and whose request is being
	// read. Connections begin at this state and then transition to either StateActive or
	// StateClosed.
	StateNew ConnState = iota

	// StateActive represents a connection whose request was parsed and handed to a
	// worker.
	StateActive

	// StateClosed represents a closed connection.
	// This is a terminal state.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// A conn represents the server side of a connection. It carries exactly one request.
type conn struct {
	// srv is the server on which the connection arrived.
	// Immutable; never nil.
	srv *Server

	// cancelCtx cancels the request context. A failed write calls it, so streaming
	// handlers notice a vanished client.
	cancelCtx context.CancelFunc

	// rwc is the underlying network connection.
	rwc net.Conn

	// remoteAddr is rwc.RemoteAddr().String().
	remoteAddr string

	// werr is set to the first write error to rwc.
	// It is set via checkConnErrorWriter{w}, where bufw writes.
	werr error

	// bufw writes to checkConnErrorWriter{c}, which populates werr on error.
	bufw *bufio.Writer

	// packed (unixtime<<8|uint8(ConnState))
	curState atom.Uint64
}

func (c *conn) setState(state ConnState) {
	srv := c.srv
	switch state {
	case StateNew:
		srv.trackConn(c, true)
	case StateClosed:
		srv.trackConn(c, false)
	}
	if state > 0xff || state < 0 {
		panic("conn: internal error")
	}
	packedState := uint64(time.Now().Unix()<<8) | uint64(state)
	c.curState.Store(packedState)
}

func (c *conn) getState() (state ConnState, unixSec int64) {
	packedState := c.curState.Load()
	return ConnState(packedState & 0xff), int64(packedState >> 8)
}

// readRequest frames and parses the request. It runs on the accepting goroutine.
func (c *conn) readRequest(ctx context.Context) (*Request, error) {
	c.remoteAddr = c.rwc.RemoteAddr().String()

	src := &deadlineReader{conn: c.rwc, timeout: c.srv.ReadTimeout}
	req, err := readRequest(src, c.srv.maxHeaderBytes(), c.srv.errorLog().Printf)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, LocalAddrContextKey, c.rwc.LocalAddr())
	req.ctx, c.cancelCtx = context.WithCancel(ctx)
	req.RemoteAddr = c.remoteAddr

	return req, nil
}

func (c *conn) newResponse(req *Request) *Response {
	c.bufw = newBufioWriter(checkConnErrorWriter{c})
	return newResponse(c.rwc, c.bufw, req, c.srv.errorLog())
}

// serve runs the handler on a pool worker. Whatever way the handler exits, the response
// is finalized and the connection released.
func (c *conn) serve(h Handler, req *Request, res *Response) {
	c.setState(StateActive)

	if d := c.srv.WriteTimeout; d > 0 {
		_ = c.rwc.SetWriteDeadline(time.Now().Add(d))
	}

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			c.srv.errorLog().Printf("mi: panic serving %v: %v\n%s", c.remoteAddr, err, buf)
		}
		res.Finalize()
		c.cancelCtx()
		c.close()
		c.setState(StateClosed)
	}()

	h.Handle(req, res)
}

// Close the connection.
func (c *conn) close() {
	if c.bufw != nil {
		// Steal the bufio.Writer (~4KB worth of memory) and its associated
		// writer for a future connection.
		putBufioWriter(c.bufw)
		c.bufw = nil
	}

	if c.rwc != nil {
		_ = c.rwc.Close()
	}
}

// deadlineReader renews the read deadline before every read, so timeout bounds how
// long a single read may block.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}

	return r.conn.Read(p)
}

// checkConnErrorWriter writes to c.rwc and records any write errors to c.werr.
// It only contains one field (and a pointer field at that), so it
// fits in an interface value without an extra allocation.
type checkConnErrorWriter struct {
	c *conn
}

func (w checkConnErrorWriter) Write(p []byte) (n int, err error) {
	n, err = w.c.rwc.Write(p)
	if err != nil && w.c.werr == nil {
		w.c.werr = err
		w.c.cancelCtx()
	}
	return
}

func putBufioWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	bufioWriterPool.Put(bw)
}

func newBufioWriter(w io.Writer) *bufio.Writer {
	if v := bufioWriterPool.Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	return bufio.NewWriter(w)
}
