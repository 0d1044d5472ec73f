package vfs

import (
	"errors"
	"io"
	"sync"
)

const spoolChunkSize = 32 << 10

var errSpoolClosed = errors.New("vfs: write spool closed")

// spool reads its source from the moment it starts, queueing chunks until a
// consumer attaches. The consumer first drains the queue in order, then the
// source is handed over and read directly with no further queueing. With a
// positive limit the producer stops reading once limit bytes are queued and
// waits for the consumer.
type spool struct {
	src   io.Reader
	limit int64

	mu       sync.Mutex
	cond     *sync.Cond
	chunks   [][]byte
	queued   int64
	srcErr   error // terminal read result, io.EOF included
	attached bool
	handoff  bool // producer has stopped; the consumer owns src
	closed   bool

	done chan struct{} // closed when run returns
}

func newSpool(src io.Reader, limit int64) *spool {
	s := &spool{src: src, limit: limit, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	return s
}

// run is the producer. It returns after the source ends, after the consumer
// attaches, or after close. A Read already in flight when close happens
// holds run until the source itself returns.
func (s *spool) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.limit > 0 && s.queued >= s.limit && !s.attached && !s.closed {
			s.cond.Wait()
		}

		if s.attached || s.closed {
			s.handoff = true
			s.cond.Broadcast()
			s.mu.Unlock()

			return
		}
		s.mu.Unlock()

		buf := make([]byte, spoolChunkSize)
		n, err := s.src.Read(buf)

		s.mu.Lock()
		if n > 0 {
			s.chunks = append(s.chunks, buf[:n])
			s.queued += int64(n)
		}

		if err != nil {
			s.srcErr = err
			s.cond.Broadcast()
			s.mu.Unlock()

			return
		}

		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// attach marks the destination as known. The producer stops at its next
// chunk boundary.
func (s *spool) attach() io.ReadCloser {
	s.mu.Lock()
	s.attached = true
	s.cond.Broadcast()
	s.mu.Unlock()

	return s
}

// Read replays queued chunks, then reads the source directly.
func (s *spool) Read(p []byte) (int, error) {
	s.mu.Lock()

	for {
		if s.closed {
			s.mu.Unlock()

			return 0, errSpoolClosed
		}

		if len(s.chunks) > 0 {
			n := copy(p, s.chunks[0])
			if n == len(s.chunks[0]) {
				s.chunks[0] = nil
				s.chunks = s.chunks[1:]
			} else {
				s.chunks[0] = s.chunks[0][n:]
			}

			s.queued -= int64(n)
			s.cond.Broadcast()
			s.mu.Unlock()

			return n, nil
		}

		if s.srcErr != nil {
			err := s.srcErr
			s.mu.Unlock()

			return 0, err
		}

		if s.handoff {
			s.mu.Unlock()

			return s.src.Read(p)
		}

		s.cond.Wait()
	}
}

// Close stops the spool and discards anything queued. It does not close the
// source.
func (s *spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.chunks = nil
	s.queued = 0
	s.cond.Broadcast()

	return nil
}
