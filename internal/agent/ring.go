package agent

import "sync"

// ring is a fixed-size writer keeping the most recent bytes, used for the
// stderr excerpt.
type ring struct {
	mu   sync.Mutex
	buf  []byte
	size int
	full bool
	pos  int
}

func newRing(size int) *ring {
	return &ring{buf: make([]byte, size), size: size}
}

func (r *ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n >= r.size {
		copy(r.buf, p[n-r.size:])
		r.pos = 0
		r.full = true
		return n, nil
	}
	for _, b := range p {
		r.buf[r.pos] = b
		r.pos++
		if r.pos == r.size {
			r.pos = 0
			r.full = true
		}
	}
	return n, nil
}

// String returns the buffered tail in write order.
func (r *ring) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return string(r.buf[:r.pos])
	}
	out := make([]byte, 0, r.size)
	out = append(out, r.buf[r.pos:]...)
	out = append(out, r.buf[:r.pos]...)
	return string(out)
}
