// Package encode turns local files into base64 payloads for the remote store.
package encode

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/util/buffers"
)

// ReadError reports that a source could not be read. It is fatal for the item.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Name, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Source is an immutable handle to one file's content and metadata.
type Source struct {
	Path        string
	Name        string
	Size        int64
	ContentType string // Declared type; empty means detect
	Open        func() (io.ReadCloser, error)
}

// FileSource builds a Source for a local file. Stat failures are returned
// as *ReadError so the caller can still create a failing item.
func FileSource(path string) (Source, error) {
	src := Source{
		Path: path,
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}

	info, err := os.Stat(path)
	if err != nil {
		return src, &ReadError{Name: src.Name, Err: err}
	}
	if info.IsDir() {
		return src, &ReadError{Name: src.Name, Err: errors.New("is a directory")}
	}
	src.Size = info.Size()
	return src, nil
}

// BytesSource builds a Source over an in-memory buffer.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Payload is the encoded form of a Source.
type Payload struct {
	Base64      string
	ContentType string
	Size        int64 // Raw bytes read
}

// ProgressFunc receives bytes read so far and the declared total after each chunk.
type ProgressFunc func(read, total int64)

// Encoder reads sources in fixed-size chunks and base64-encodes them.
type Encoder struct {
	ChunkSize int
}

// NewEncoder returns an Encoder with the given chunk size, or the default
// when chunkSize <= 0.
func NewEncoder(chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = constants.EncodeChunkSize
	}
	return &Encoder{ChunkSize: chunkSize}
}

// Encode reads src to the end and returns its standard base64 encoding.
// ctx is checked between chunks. progress may be nil.
func (e *Encoder) Encode(ctx context.Context, src Source, progress ProgressFunc) (*Payload, error) {
	if src.Open == nil {
		return nil, &ReadError{Name: src.Name, Err: errors.New("source has no content")}
	}

	r, err := src.Open()
	if err != nil {
		return nil, &ReadError{Name: src.Name, Err: err}
	}
	defer r.Close()

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = constants.EncodeChunkSize
	}

	var out strings.Builder
	if src.Size > 0 {
		out.Grow(base64.StdEncoding.EncodedLen(int(src.Size)))
	}
	enc := base64.NewEncoder(base64.StdEncoding, &out)

	total := src.Size
	var buf []byte
	if chunkSize == constants.EncodeChunkSize {
		pooled := buffers.GetChunkBuffer()
		defer buffers.PutChunkBuffer(pooled)
		buf = *pooled
	} else {
		buf = make([]byte, chunkSize)
	}
	var read int64
	var head []byte

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if head == nil {
				head = append([]byte(nil), buf[:min(n, constants.SniffLength)]...)
			}
			// Writes to a strings.Builder never fail.
			_, _ = enc.Write(buf[:n])
			read += int64(n)
			if read > total {
				total = read
			}
			if progress != nil {
				progress(read, total)
			}
		}

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return nil, &ReadError{Name: src.Name, Err: rerr}
		}
	}

	if read < src.Size {
		return nil, &ReadError{
			Name: src.Name,
			Err:  fmt.Errorf("%w: read %d of %d bytes", io.ErrUnexpectedEOF, read, src.Size),
		}
	}
	_ = enc.Close()

	if read == 0 && progress != nil {
		progress(0, 0)
	}

	return &Payload{
		Base64:      out.String(),
		ContentType: DetectContentType(src.Name, head, src.ContentType),
		Size:        read,
	}, nil
}
