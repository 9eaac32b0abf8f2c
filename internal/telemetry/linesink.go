package telemetry

import (
	"bufio"
	"io"
	"sync"
)

// LineSink writes one Record per line to an io.Writer, a simple
// datagram-style text output. Safe for concurrent Deliver from the
// bus's dispatch goroutine plus manual flushes elsewhere.
type LineSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: bufio.NewWriter(w)}
}

func (s *LineSink) Deliver(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.WriteString(rec.String())
	s.w.WriteByte('\n')
	s.w.Flush()
}
