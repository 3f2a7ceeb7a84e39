package bulk

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/yanun0323/errors"
)

// BadSink quarantines rejected lines verbatim, one per line.
type BadSink struct {
	mu    sync.Mutex
	w     *bufio.Writer
	c     io.Closer
	count int64
}

// NewBadSink wraps w. Close closes w when it is an io.Closer.
func NewBadSink(w io.Writer) *BadSink {
	s := &BadSink{w: bufio.NewWriterSize(w, 64<<10)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateBadSink truncates or creates path.
func CreateBadSink(path string) (*BadSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open bad sink %s", path)
	}
	return NewBadSink(f), nil
}

// Append writes line followed by a newline.
func (s *BadSink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return errors.Wrap(err, "write bad line")
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write bad line")
	}
	s.count++
	return nil
}

// Count is the number of quarantined lines.
func (s *BadSink) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close flushes and closes the underlying writer.
func (s *BadSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "flush bad sink")
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
