package ring_buffer

// Sample is the element type a Buffer can hold.
type Sample interface {
	~int16 | ~float32
}

// Buffer keeps the most recent Size() samples written to it.
type Buffer[T Sample] struct {
	buffer  []T
	head    int
	written int
}

func New[T Sample](size int) *Buffer[T] {
	return &Buffer[T]{
		buffer: make([]T, size),
		head:   0,
	}
}

func (r *Buffer[T]) Add(samples []T) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}
	r.written += len(samples)
}

// Read returns the buffered samples oldest first. Slots never written read as
// zero, so a partially filled buffer is left-padded with silence.
func (r *Buffer[T]) Read() []T {
	samples := make([]T, len(r.buffer))
	for i := 0; i < len(r.buffer); i++ {
		samples[i] = r.buffer[(r.head+i)%len(r.buffer)]
	}
	return samples
}

// Full reports whether at least Size() samples have been added since the
// last Clear.
func (r *Buffer[T]) Full() bool {
	return r.written >= len(r.buffer)
}

func (r *Buffer[T]) Size() int {
	return len(r.buffer)
}

func (r *Buffer[T]) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}
	r.head = 0
	r.written = 0
}
