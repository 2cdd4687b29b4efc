// Package logbuf provides a memory-buffered log sink alongside the
// process's regular glog output: every task clears the buffer before it
// starts, and on fatal failure the buffered content is attached
// verbatim to the Slack alert.
package logbuf

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Sink captures formatted log lines in memory in addition to whatever
// glog.Infof/Warningf/Errorf already sent to stderr/file outputs. It is
// not a glog backend (glog has none pluggable); callers route through
// Sink's own Infof/Warningf/Errorf which both forward to glog and buffer.
type Sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func New() *Sink { return &Sink{} }

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

func (s *Sink) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *Sink) write(level, format string, args ...interface{}) {
	line := fmt.Sprintf("%s - %s - %s\n", time.Now().UTC().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
	s.mu.Lock()
	s.buf.WriteString(line)
	s.mu.Unlock()
}

func (s *Sink) Infof(format string, args ...interface{}) {
	glog.Infof(format, args...)
	s.write("INFO", format, args...)
}

func (s *Sink) Warningf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
	s.write("WARNING", format, args...)
}

func (s *Sink) Errorf(format string, args ...interface{}) {
	glog.Errorf(format, args...)
	s.write("ERROR", format, args...)
}
