package console

import (
	"bytes"
	"io"
	"sync"
)

const (
	// consoleBufferSize is the number of lines kept per source. /debug
	// replays them before attaching.
	consoleBufferSize = 64
	// AllSources attaches to the output of every source.
	AllSources = "*"
)

type consoleBuffer struct {
	messages [][]byte
	start    int
	count    int
}

func (b *consoleBuffer) push(msg []byte) {
	if b.messages == nil {
		b.messages = make([][]byte, consoleBufferSize)
	}
	msgCopy := make([]byte, len(msg))
	copy(msgCopy, msg)

	idx := (b.start + b.count) % consoleBufferSize
	if b.count < consoleBufferSize {
		b.messages[idx] = msgCopy
		b.count++
	} else {
		b.messages[b.start] = msgCopy
		b.start = (b.start + 1) % consoleBufferSize
	}
}

func (b *consoleBuffer) getAll() [][]byte {
	if b.count == 0 {
		return nil
	}
	result := make([][]byte, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.messages[(b.start+i)%consoleBufferSize]
	}
	return result
}

// sourceOf extracts the source from a "[source] ..." line written by the
// script log function.
func sourceOf(line []byte) string {
	if len(line) == 0 || line[0] != '[' {
		return ""
	}
	end := bytes.IndexByte(line, ']')
	if end < 0 {
		return ""
	}
	return string(line[1:end])
}

// Switchboard is the console writer of the script runtime. It routes every
// line to the terminals attached to its source, and keeps the latest lines
// of every source.
type Switchboard struct {
	mu       sync.RWMutex
	fallback io.Writer
	consoles map[string]map[io.Writer]struct{}
	buffers  map[string]*consoleBuffer
}

// NewSwitchboard returns a switchboard also copying every line to
// fallback, which may be nil.
func NewSwitchboard(fallback io.Writer) *Switchboard {
	return &Switchboard{
		fallback: fallback,
		consoles: map[string]map[io.Writer]struct{}{},
		buffers:  map[string]*consoleBuffer{},
	}
}

// Attach connects w to the output of source, or of every source if source
// is AllSources.
func (s *Switchboard) Attach(source string, w io.Writer) {
	if w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consoles[source] == nil {
		s.consoles[source] = map[io.Writer]struct{}{}
	}
	s.consoles[source][w] = struct{}{}
}

func (s *Switchboard) Detach(source string, w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach(source, w)
}

func (s *Switchboard) detach(source string, w io.Writer) {
	if writers := s.consoles[source]; writers != nil {
		delete(writers, w)
		if len(writers) == 0 {
			delete(s.consoles, source)
		}
	}
}

// DetachAll disconnects w from every source.
func (s *Switchboard) DetachAll(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for source := range s.consoles {
		s.detach(source, w)
	}
}

func (s *Switchboard) IsAttached(source string, w io.Writer) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, attached := s.consoles[source][w]
	return attached
}

// Write never fails. Writers failing to receive a line are detached.
func (s *Switchboard) Write(b []byte) (int, error) {
	source := sourceOf(b)

	s.mu.Lock()
	if s.buffers[source] == nil {
		s.buffers[source] = &consoleBuffer{}
	}
	s.buffers[source].push(b)
	targets := map[io.Writer]string{}
	for _, key := range []string{AllSources, source} {
		for w := range s.consoles[key] {
			targets[w] = key
		}
	}
	s.mu.Unlock()

	if s.fallback != nil {
		s.fallback.Write(b)
	}

	var failed []io.Writer
	for w := range targets {
		if _, err := w.Write(b); err != nil {
			failed = append(failed, w)
		}
	}
	if len(failed) > 0 {
		s.mu.Lock()
		for _, w := range failed {
			s.detach(targets[w], w)
		}
		s.mu.Unlock()
	}
	return len(b), nil
}

// Buffered returns the kept lines of source, oldest first.
func (s *Switchboard) Buffered(source string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if buf := s.buffers[source]; buf != nil {
		return buf.getAll()
	}
	return nil
}
