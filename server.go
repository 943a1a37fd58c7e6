package mi

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	atom "go.uber.org/atomic"
)

type contextKey struct {
	name string
}

var (
	// ServerContextKey is a context key. It can be used in handlers with
	// Request.Context().Value to access the server that started the handler. The
	// associated value will be of type *Server.
	ServerContextKey = &contextKey{"mi-server"}

	// LocalAddrContextKey is a context key. It can be used in handlers to access the
	// local address the connection arrived on. The associated value will be of type
	// net.Addr.
	LocalAddrContextKey = &contextKey{"mi-local-addr"}
)

// DefaultReadTimeout is the read deadline New configures.
const DefaultReadTimeout = 30 * time.Second

var shutdownPollInterval = 500 * time.Millisecond

// A Server accepts connections, reads one request from each, and runs the first
// matching handler on a fixed-size worker pool.
//
// Accepting, setting the read deadline, parsing and matching all happen on the
// accepting goroutine; only the handler runs on the pool. A client that is slow to send
// its header block therefore delays every connection behind it, up to ReadTimeout.
//
// The zero value is a valid configuration without a read deadline; New returns one with
// the usual defaults.
type Server struct {
	Addr string // TCP address for ListenAndServe, ErrServerAddrError if empty

	// Workers is the size of the handler pool. Zero means runtime.NumCPU().
	Workers int

	// ReadTimeout bounds how long a single socket read may block, while framing the
	// header block as well as in Request.Body. Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration a handler has to write its response,
	// counted from the moment it starts. Zero disables it.
	WriteTimeout time.Duration

	// MaxHeaderBytes limits the size of the header block. Zero means
	// DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// AccessLog receives a line per parsed request. Nil discards.
	AccessLog io.Writer
	// ErrorLog receives failures of any kind. Nil means os.Stderr.
	ErrorLog io.Writer

	handlers chain

	inShutdown atom.Bool
	started    atom.Bool
	serving    atom.Int32
	served     atom.Uint64

	sinksOnce  sync.Once
	accessSink *Sink
	errorSink  *Sink

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn *xsync.MapOf[*conn, struct{}]
}

func New() *Server {
	return &Server{
		ReadTimeout: DefaultReadTimeout,
		AccessLog:   io.Discard,
		ErrorLog:    os.Stderr,
	}
}

// Handle registers a handler built from match and handle. See AddHandler.
func (srv *Server) Handle(match MatchFunc, handle HandleFunc) {
	srv.AddHandler(NewHandler(match, handle))
}

// AddHandler appends h to the handler chain. Handlers are asked in the order they were
// added and the first match wins, so a handler that matches everything hides all later
// ones. Handlers must be registered before serving starts.
func (srv *Server) AddHandler(h Handler) {
	if h == nil {
		panic("mi: nil handler")
	}
	if srv.started.Load() {
		panic("mi: handler registered after the server started")
	}

	srv.handlers = append(srv.handlers, h)
}

// Listen accepts connections on all interfaces at port. See Serve.
func (srv *Server) Listen(port uint16) error {
	return srv.listenAndServe(":" + strconv.Itoa(int(port)))
}

// ListenAndServe listens on srv.Addr and then calls Serve.
//
// If srv.Addr is blank, the returned error is ErrServerAddrError.
func (srv *Server) ListenAndServe() error {
	if len(srv.Addr) == 0 {
		return ErrServerAddrError
	}

	return srv.listenAndServe(srv.Addr)
}

func (srv *Server) listenAndServe(addr string) error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return srv.Serve(ln)
}

func (srv *Server) shuttingDown() bool {
	return srv.inShutdown.Load()
}

// Running reports whether the server still accepts connections.
func (srv *Server) Running() bool {
	return !srv.inShutdown.Load()
}

// Served returns the number of requests handed to a handler so far.
func (srv *Server) Served() uint64 {
	return srv.served.Load()
}

// Serve accepts connections on l until Shutdown or Close is called. Before returning,
// it waits for every handler it started to finish.
//
// Serve always returns a non-nil error; after Shutdown or Close it is ErrServerClosed.
func (srv *Server) Serve(l net.Listener) error {
	l = &onceCloseListener{Listener: l}
	defer l.Close()

	if !srv.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer srv.trackListener(&l, false)

	srv.started.Store(true)
	srv.serving.Inc()
	defer srv.doneServing()

	pool, err := newWorkerPool(srv.Workers, srv.errorLog())
	if err != nil {
		return err
	}
	defer pool.Join()

	var tempDelay time.Duration // how long to sleep on accept failure
	ctx := context.WithValue(context.Background(), ServerContextKey, srv)
	for {
		rw, err := l.Accept()
		if err != nil {
			if srv.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			srv.errorLog().Printf("Incoming connection error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		c := srv.newConn(rw)
		c.setState(StateNew) // before Serve can return
		srv.handleConn(ctx, c, pool)

		if srv.shuttingDown() {
			return ErrServerClosed
		}
	}
}

// handleConn parses and matches on the accepting goroutine, then queues the handler.
func (srv *Server) handleConn(ctx context.Context, c *conn, pool *workerPool) {
	req, err := c.readRequest(ctx)
	if err != nil {
		srv.errorLog().Printf("Invalid request from %s: %v", c.remoteAddr, err)
		c.close()
		c.setState(StateClosed)
		return
	}

	srv.accessLog().Printf("%s %s", req.Method, req.URI)

	h := srv.handlers.match(req)
	if h == nil {
		h = NotFound
	}

	res := c.newResponse(req)
	srv.served.Inc()

	if err := pool.Submit(func() { c.serve(h, req, res) }); err != nil {
		srv.errorLog().Printf("mi: cannot queue %s %s: %v; serving inline", req.Method, req.URI, err)
		c.serve(h, req, res)
	}
}

func (srv *Server) doneServing() {
	if srv.serving.Dec() == 0 && srv.shuttingDown() {
		srv.closeSinks()
	}
}

// closeSinks flushes both log sinks. Lines logged afterwards are dropped.
func (srv *Server) closeSinks() {
	_ = srv.accessLog().Close()
	_ = srv.errorLog().Close()
}

func (srv *Server) trackConn(c *conn, add bool) {
	if add {
		srv.activeConn.Store(c, struct{}{})
	} else {
		srv.activeConn.Delete(c)
	}
}

func (srv *Server) trackListener(ln *net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[*net.Listener]struct{})
	}
	if srv.activeConn == nil {
		srv.activeConn = xsync.NewMapOf[*conn, struct{}]()
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

// Create new connection from rwc.
func (srv *Server) newConn(rwc net.Conn) *conn {
	c := &conn{
		srv: srv,
		rwc: rwc,
	}
	return c
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}

// Shutdown stops accepting connections and waits until every running handler has
// finished and every Serve call has returned, or until ctx is done. Handlers are never
// interrupted. On success both logs are flushed when Shutdown returns.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.inShutdown.Store(true)
	srv.mu.Lock()
	lnErr := srv.closeListenersLocked()
	srv.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.quiescent() {
			srv.closeSinks()
			return lnErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// quiescent reports whether no Serve loop is running and no connection is open.
func (srv *Server) quiescent() bool {
	if srv.serving.Load() > 0 {
		return false
	}

	srv.mu.Lock()
	conns := srv.activeConn
	srv.mu.Unlock()

	return conns == nil || conns.Size() == 0
}

// ConnStates counts the tracked connections per state.
func (srv *Server) ConnStates() map[ConnState]int {
	states := make(map[ConnState]int)

	srv.mu.Lock()
	conns := srv.activeConn
	srv.mu.Unlock()

	if conns != nil {
		conns.Range(func(c *conn, _ struct{}) bool {
			state, _ := c.getState()
			states[state]++
			return true
		})
	}

	return states
}

// Close immediately closes all listeners and every tracked connection. Handlers still
// running see their writes fail. For a graceful shutdown, use Shutdown.
func (srv *Server) Close() error {
	srv.inShutdown.Store(true)
	srv.mu.Lock()
	defer srv.mu.Unlock()

	err := srv.closeListenersLocked()
	if srv.activeConn != nil {
		srv.activeConn.Range(func(c *conn, _ struct{}) bool {
			_ = c.rwc.Close()
			return true
		})
	}
	return err
}

func (srv *Server) initSinks() {
	srv.sinksOnce.Do(func() {
		errLog := srv.ErrorLog
		if errLog == nil {
			errLog = os.Stderr
		}

		srv.accessSink = NewSink(srv.AccessLog)
		srv.errorSink = NewSink(errLog)
	})
}

func (srv *Server) accessLog() *Sink {
	srv.initSinks()
	return srv.accessSink
}

func (srv *Server) errorLog() *Sink {
	srv.initSinks()
	return srv.errorSink
}

func (srv *Server) maxHeaderBytes() int {
	if srv.MaxHeaderBytes > 0 {
		return srv.MaxHeaderBytes
	}

	return DefaultMaxHeaderBytes
}

// onceCloseListener wraps a net.Listener, protecting it from
// multiple Close calls.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (oc *onceCloseListener) Close() error {
	oc.once.Do(oc.close)
	return oc.closeErr
}

func (oc *onceCloseListener) close() { oc.closeErr = oc.Listener.Close() }
