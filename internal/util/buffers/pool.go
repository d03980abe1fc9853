// Package buffers pools the read buffers the encoder fills from image files.
package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/rescale/photoup/internal/constants"
)

var chunkAllocations atomic.Int64

var chunkPool = &sync.Pool{
	New: func() interface{} {
		chunkAllocations.Add(1)
		buf := make([]byte, constants.EncodeChunkSize)
		return &buf
	},
}

// GetChunkBuffer retrieves an EncodeChunkSize buffer from the pool.
// Return it with PutChunkBuffer when done.
//
// Usage:
//
//	buf := buffers.GetChunkBuffer()
//	defer buffers.PutChunkBuffer(buf)
//	n, err := io.ReadFull(file, *buf)
func GetChunkBuffer() *[]byte {
	return chunkPool.Get().(*[]byte)
}

// PutChunkBuffer returns a buffer to the pool. Buffers of any other size
// are dropped. The buffer is cleared so image bytes do not linger.
func PutChunkBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.EncodeChunkSize {
		clear(*buf)
		chunkPool.Put(buf)
	}
}

// Stats reports pool usage.
type Stats struct {
	ChunkBufferSize  int   // Size of pooled buffers (bytes)
	ChunkAllocations int64 // Buffers created rather than reused
}

// GetStats returns current buffer pool statistics.
func GetStats() Stats {
	return Stats{
		ChunkBufferSize:  constants.EncodeChunkSize,
		ChunkAllocations: chunkAllocations.Load(),
	}
}
