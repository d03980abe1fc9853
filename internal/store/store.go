// Package store defines the remote store contract used by the upload pipeline
// and the error taxonomy shared by its backends.
package store

import (
	"context"
	"math/bits"
	"sync"

	"github.com/rescale/photoup/internal/models"
)

// Request is one encoded item addressed to the store.
type Request struct {
	FileName    string
	Payload     string // Standard base64
	ContentType string // Optional; the store may infer it from FileName
}

// ProgressFunc receives bytes sent so far and the total the backend expects
// to send. Backends may report any total; only the ratio matters.
type ProgressFunc func(sent, total int64)

// Store accepts an encoded item and returns the stored record.
//
// Put must eventually return. It may call progress zero or more times from
// the calling goroutine or from transport goroutines.
type Store interface {
	Put(ctx context.Context, req Request, progress ProgressFunc) (*models.Record, error)
}

// Send calls s.Put and guarantees the phase boundary is reported on success,
// even when the backend never reported intermediate progress.
// Reports passed to progress never move backwards.
func Send(ctx context.Context, s Store, req Request, progress ProgressFunc) (*models.Record, error) {
	t := &tracker{fn: progress}

	rec, err := s.Put(ctx, req, t.report)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &ProtocolError{Message: "store returned no record"}
	}

	t.complete(int64(len(req.Payload)))
	return rec, nil
}

// tracker serializes progress reports and drops regressions, which happen
// when a transport rewinds its body for a retry.
type tracker struct {
	mu    sync.Mutex
	fn    ProgressFunc
	sent  int64
	total int64
	seen  bool
}

func (t *tracker) report(sent, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if total < 0 {
		total = 0
	}
	if sent < 0 {
		sent = 0
	}
	if sent > total {
		sent = total
	}
	if t.seen && behind(sent, total, t.sent, t.total) {
		return
	}
	t.sent, t.total, t.seen = sent, total, true
	if t.fn != nil {
		t.fn(sent, total)
	}
}

// behind reports whether sent/total is a smaller fraction than prevSent/prevTotal.
// Cross products are taken in 128 bits since payload sizes can pass 3e9.
func behind(sent, total, prevSent, prevTotal int64) bool {
	if total == prevTotal {
		return sent < prevSent
	}
	aHi, aLo := bits.Mul64(uint64(sent), uint64(max(prevTotal, 1)))
	bHi, bLo := bits.Mul64(uint64(prevSent), uint64(max(total, 1)))
	return aHi < bHi || (aHi == bHi && aLo < bLo)
}

func (t *tracker) complete(fallbackTotal int64) {
	t.mu.Lock()
	done := t.seen && t.sent >= t.total
	total := t.total
	if !t.seen {
		total = fallbackTotal
	}
	t.mu.Unlock()

	if !done {
		t.report(total, total)
	}
}
