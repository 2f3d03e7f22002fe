package feed

import "time"

type sample struct {
	at    time.Time
	price float64
}

// ring is a bounded FIFO of samples ordered by timestamp.
type ring struct {
	buf   []sample
	head  int // index of the oldest sample
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]sample, capacity)}
}

func (r *ring) at(i int) sample {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring) last() (sample, bool) {
	if r.count == 0 {
		return sample{}, false
	}
	return r.at(r.count - 1), true
}

func (r *ring) push(s sample) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// evictBefore drops samples strictly older than cutoff, always keeping the
// newest one.
func (r *ring) evictBefore(cutoff time.Time) {
	for r.count > 1 && r.at(0).at.Before(cutoff) {
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
}

// baseAt returns the newest sample at or before t.
func (r *ring) baseAt(t time.Time) (sample, bool) {
	for i := r.count - 1; i >= 0; i-- {
		if s := r.at(i); !s.at.After(t) {
			return s, true
		}
	}
	return sample{}, false
}
