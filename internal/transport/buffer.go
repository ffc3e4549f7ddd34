package transport

import "sync"

// initialBufferCap is the starting capacity for pooled buffers. Sized for a
// handful of typical SSH packets so the common case never reallocates.
const initialBufferCap = 4096

// bufferPool recycles the byte slices backing inbound/outbound staging
// buffers so steady-state traffic allocates nothing per packet.
var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, initialBufferCap)
		return &b
	},
}

// getBuffer returns a zero-length byte slice borrowed from the pool.
func getBuffer() []byte {
	p := bufferPool.Get().(*[]byte)
	return (*p)[:0]
}

// putBuffer returns b to the pool. b must not be used by the caller again.
func putBuffer(b []byte) {
	b = b[:0]
	bufferPool.Put(&b)
}

// Buffer is a contiguous, owned byte buffer with explicit reserve/append/
// prepend operations. No interior pointers survive across buffer growth:
// no component other than the owning Session may retain a Buffer's
// backing slice across calls.
type Buffer struct {
	data []byte
}

// NewBuffer returns a Buffer backed by a pooled byte slice.
func NewBuffer() *Buffer {
	return &Buffer{data: getBuffer()}
}

// Release returns the Buffer's backing slice to the pool. The Buffer must
// not be used afterward.
func (b *Buffer) Release() {
	if b.data != nil {
		putBuffer(b.data)
		b.data = nil
	}
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns a view of the currently held bytes. The view is invalidated
// by any subsequent mutating call on b.
func (b *Buffer) Bytes() []byte { return b.data }

// Reserve ensures capacity for at least n additional bytes without changing
// Len, growing the backing array if necessary.
func (b *Buffer) Reserve(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// Append appends p to the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	b.Reserve(len(p))
	b.data = append(b.data, p...)
}

// Prepend inserts p at the front of the buffer, shifting existing content.
func (b *Buffer) Prepend(p []byte) {
	combined := make([]byte, 0, len(p)+len(b.data))
	combined = append(combined, p...)
	combined = append(combined, b.data...)
	b.data = combined
}

// Consume discards the first n bytes, shifting the remainder to the front.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	b.data = append(b.data[:0], b.data[n:]...)
}

// Reset discards all held bytes without releasing the backing array.
func (b *Buffer) Reset() { b.data = b.data[:0] }
