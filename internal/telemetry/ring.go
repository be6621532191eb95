package telemetry

// Ring is a fixed-capacity, overwrite-oldest sample store. Once full, each
// Push silently evicts the oldest sample. Not safe for concurrent use; the
// owning Engine holds the lock.
type Ring[T any] struct {
	buf   []T
	head  int // next write position
	count int
}

// NewRing creates a ring with the given capacity. Capacity must be positive;
// a non-positive value is clamped to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push stores a sample, overwriting the oldest one when full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// All returns the samples in chronological order, oldest first.
func (r *Ring[T]) All() []T {
	out := make([]T, 0, r.count)
	if r.count < len(r.buf) {
		// Not wrapped yet: samples live in [0, count).
		return append(out, r.buf[:r.count]...)
	}
	// Wrapped: oldest sample sits at head.
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Last returns the most recent n samples in chronological order.
func (r *Ring[T]) Last(n int) []T {
	all := r.All()
	if n >= len(all) {
		return all
	}
	if n <= 0 {
		return nil
	}
	return all[len(all)-n:]
}

// Len returns the number of stored samples.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Reset discards all samples.
func (r *Ring[T]) Reset() {
	r.head = 0
	r.count = 0
}
