package common

// Ring is a fixed-capacity circular buffer that overwrites its oldest element
// once full. It is not safe for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	buffer   []T
	size     int
	writePos int
	count    int
}

// NewRing creates a ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{
		buffer: make([]T, size),
		size:   size,
	}
}

// Push appends v. When the ring is full the oldest element is evicted and
// returned with evicted == true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.count == r.size {
		old = r.buffer[r.writePos]
		evicted = true
	} else {
		r.count++
	}
	r.buffer[r.writePos] = v
	r.writePos = (r.writePos + 1) % r.size
	return old, evicted
}

// At returns the i-th element counting from the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("common: ring index out of range")
	}
	start := (r.writePos - r.count + r.size) % r.size
	return r.buffer[(start+i)%r.size]
}

// Slice returns the elements oldest to newest in a new slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := range r.count {
		out[i] = r.At(i)
	}
	return out
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.size
}

// IsFull returns true if buffer is full
func (r *Ring[T]) IsFull() bool {
	return r.count == r.size
}

// IsEmpty returns true if buffer is empty
func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buffer {
		r.buffer[i] = zero
	}
	r.writePos = 0
	r.count = 0
}
