package store

import "sync"

const (
	chapterPrefix = "chapter:"
	contentPrefix = "content:"
)

// keyPool provides reusable byte slices for building lookup keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix plus a 36 byte UUID fits comfortably.
		return make([]byte, 0, 64)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
