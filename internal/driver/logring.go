package driver

import (
	"bytes"
	"sync"
)

// logRing is a bounded ring of output lines. Build output streams through
// it so a day-long compile cannot grow the pipeline's memory footprint,
// while the newest lines stay available for failure reports.
type logRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
	part  bytes.Buffer // Bytes of a line whose newline has not arrived yet.
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &logRing{lines: make([]string, capacity)}
}

// Write splits p into lines and pushes them onto the ring. Safe for
// concurrent use; a torn line is buffered until its newline arrives.
func (r *logRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			r.part.Write(p)
			break
		}
		r.part.Write(p[:i])
		r.push(r.part.String())
		r.part.Reset()
		p = p[i+1:]
	}
	return n, nil
}

func (r *logRing) push(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Tail returns up to n of the newest lines, oldest first. An unterminated
// trailing line is included; build failures usually end mid-line.
func (r *logRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.snapshot()
	if r.part.Len() > 0 {
		out = append(out, r.part.String())
	}
	if n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

func (r *logRing) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
