package pool

// Buffer is a fixed-capacity byte buffer that is filled by channel reads and
// consumed by request parsers.
//
// The readable region is Bytes(); the writable region is Free(). A read
// completion appends with Advance, Reset empties the buffer for the next read.
type Buffer struct {
	b []byte
}

// NewBuffer allocates an empty Buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

// Bytes returns the readable bytes. The slice aliases the buffer and is only
// valid until the next Reset.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Len returns the number of readable bytes.
func (b *Buffer) Len() int {
	return len(b.b)
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return cap(b.b)
}

// Free returns the writable tail of the buffer.
func (b *Buffer) Free() []byte {
	return b.b[len(b.b):cap(b.b)]
}

// Advance marks n bytes of Free() as readable.
func (b *Buffer) Advance(n int) {
	b.b = b.b[:len(b.b)+n]
}

// Write appends p, truncating to the remaining capacity.
// It returns the number of bytes copied.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.Free(), p)
	b.Advance(n)
	return n
}

// Reset empties the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
}

// BufferPool is an ObjectPool of Buffers sharing one capacity.
type BufferPool = ObjectPool[*Buffer]

// NewBufferPool creates a pool keeping at most size idle buffers of the given
// capacity. Buffers are reset when offered back.
func NewBufferPool(size, capacity int) *BufferPool {
	if capacity <= 0 {
		panic("pool: buffer capacity must be positive")
	}
	return New(size,
		func() *Buffer { return NewBuffer(capacity) },
		func(b *Buffer) { b.Reset() },
	)
}
