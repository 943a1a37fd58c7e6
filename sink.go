package mi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sinkBacklog = 256

// Sink writes "<unix-timestamp> <message>" lines to a writer. A single goroutine owns
// the writer and receives lines over a channel, so callers on any goroutine never
// interleave bytes and never block each other on the writer itself.
//
// A nil *Sink discards everything.
type Sink struct {
	w     io.Writer
	lines chan string
	done  chan struct{}

	// mu guards closing lines against concurrent sends.
	mu     sync.RWMutex
	closed bool
}

func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = io.Discard
	}

	s := &Sink{
		w:     w,
		lines: make(chan string, sinkBacklog),
		done:  make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *Sink) run() {
	defer close(s.done)

	for line := range s.lines {
		_, _ = io.WriteString(s.w, line)
	}
}

// Print queues the message. The timestamp is taken at call time.
func (s *Sink) Print(message string) {
	if s == nil {
		return
	}

	line := strconv.FormatInt(time.Now().Unix(), 10) + " " + message + "\n"

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	s.lines <- line
}

func (s *Sink) Printf(format string, args ...interface{}) {
	if s == nil {
		return
	}

	s.Print(fmt.Sprintf(format, args...))
}

// Write queues p as a single message, so the sink can stand in for any io.Writer based
// logger.
func (s *Sink) Write(p []byte) (int, error) {
	s.Print(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

// Close stops accepting lines and returns once every queued line has been written. The
// underlying writer is left open.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}
