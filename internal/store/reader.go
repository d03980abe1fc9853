package store

import (
	"io"
	"strings"
)

// ProgressReader reports bytes consumed from an in-memory body.
// It is seekable so SDKs can compute lengths and rewind for retries.
type ProgressReader struct {
	r     *strings.Reader
	total int64
	fn    ProgressFunc
}

// NewProgressReader wraps body; fn may be nil.
func NewProgressReader(body string, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{
		r:     strings.NewReader(body),
		total: int64(len(body)),
		fn:    fn,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.total-int64(p.r.Len()), p.total)
	}
	return n, err
}

func (p *ProgressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

// Len returns the number of unread bytes.
func (p *ProgressReader) Len() int {
	return p.r.Len()
}

// Size returns the full body length.
func (p *ProgressReader) Size() int64 {
	return p.total
}

// Close is a no-op so the reader can be used where an io.ReadSeekCloser is required.
func (p *ProgressReader) Close() error {
	return nil
}

var _ io.ReadSeekCloser = (*ProgressReader)(nil)
