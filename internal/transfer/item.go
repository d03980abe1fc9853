// Package transfer runs batches of image uploads: per-item state, the bounded
// worker pool that drives encode then transmit, and the batch controller that
// owns the current selection.
package transfer

import (
	"time"

	"github.com/google/uuid"

	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/encode"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/preview"
	"github.com/rescale/photoup/internal/store"
)

// Status is the lifecycle state of one item.
type Status string

const (
	StatusQueued    Status = "queued"    // Waiting for a worker
	StatusEncoding  Status = "encoding"  // Worker is reading and encoding the source
	StatusUploading Status = "uploading" // Worker is sending the payload to the store
	StatusSuccess   Status = "success"   // Store acknowledged the item
	StatusError     Status = "error"     // Encode or transmit failed
)

// Terminal reports whether no worker holds an item in this state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Active reports whether a worker currently holds an item in this state.
func (s Status) Active() bool {
	return s == StatusEncoding || s == StatusUploading
}

// Item is one selected file's upload lifecycle.
//
// Items are values: every change produces a new Item that replaces the old
// one by ID, so readers never see a half-applied update.
type Item struct {
	ID       string
	Index    int // Position in the selection
	Source   encode.Source
	Preview  preview.Ref
	Status   Status
	Progress int    // 0..100
	Error    string // Non-empty iff Status == StatusError
	Err      error
	Record   *models.Record
	Attempt  int // Incremented every time the item is queued for a run

	StartedAt   time.Time
	CompletedAt time.Time
}

// NewItem creates a queued item with a fresh ID.
func NewItem(index int, src encode.Source, ref preview.Ref) Item {
	return Item{
		ID:      uuid.NewString(),
		Index:   index,
		Source:  src,
		Preview: ref,
		Status:  StatusQueued,
	}
}

// Retryable reports whether a failed item may succeed on a manual retry.
func (it Item) Retryable() bool {
	return it.Status == StatusError && store.IsRetryable(it.Err)
}

// queued resets the item for a new attempt.
func (it Item) queued() Item {
	it.Status = StatusQueued
	it.Progress = 0
	it.Error = ""
	it.Err = nil
	it.Record = nil
	it.Attempt++
	it.StartedAt = time.Time{}
	it.CompletedAt = time.Time{}
	return it
}

func (it Item) encoding(now time.Time) Item {
	it.Status = StatusEncoding
	it.Progress = constants.ProgressEncodeMin
	it.StartedAt = now
	return it
}

func (it Item) uploading() Item {
	it.Status = StatusUploading
	if it.Progress < constants.ProgressTransmitMin {
		it.Progress = constants.ProgressTransmitMin
	}
	return it
}

func (it Item) succeeded(rec *models.Record, now time.Time) Item {
	it.Status = StatusSuccess
	it.Progress = constants.ProgressDone
	it.Record = rec
	it.CompletedAt = now
	return it
}

func (it Item) failed(err error, now time.Time) Item {
	it.Status = StatusError
	it.Progress = constants.ProgressDone
	it.Err = err
	it.Error = err.Error()
	if it.Error == "" {
		it.Error = "upload failed"
	}
	it.CompletedAt = now
	return it
}

// advance applies a phase progress value. It returns false when the value
// belongs to another phase or would move the bar backwards.
func (it Item) advance(p int) (Item, bool) {
	switch it.Status {
	case StatusEncoding:
		if p < constants.ProgressEncodeMin || p > constants.ProgressEncodeMax {
			return it, false
		}
	case StatusUploading:
		if p < constants.ProgressTransmitMin || p > constants.ProgressTransmitMax {
			return it, false
		}
	default:
		return it, false
	}
	if p <= it.Progress {
		return it, false
	}
	it.Progress = p
	return it, true
}

// EncodeProgress maps bytes read to the encode phase range [1,60].
// An empty source counts as fully read.
func EncodeProgress(read, total int64) int {
	return blend(read, total, constants.ProgressEncodeMin, constants.ProgressEncodeMax)
}

// TransmitProgress maps bytes sent to the transmit phase range [61,99].
// 100 is left for terminal states.
func TransmitProgress(sent, total int64) int {
	return blend(sent, total, constants.ProgressTransmitMin, constants.ProgressTransmitMax)
}

func blend(done, total int64, lo, hi int) int {
	if total <= 0 {
		return hi
	}
	if done < 0 {
		done = 0
	}
	p := lo + int(int64(hi-lo)*done/total)
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

// ItemView is the read-only snapshot of an item handed to presentation code.
type ItemView struct {
	ID        string
	Index     int
	Name      string
	Size      int64
	Preview   preview.Ref
	Status    Status
	Progress  int
	Error     string
	Retryable bool
	RecordID  string
	Location  string
	Tags      []string
	Attempt   int
}

// View snapshots the item.
func (it Item) View() ItemView {
	v := ItemView{
		ID:        it.ID,
		Index:     it.Index,
		Name:      it.Source.Name,
		Size:      it.Source.Size,
		Preview:   it.Preview,
		Status:    it.Status,
		Progress:  it.Progress,
		Error:     it.Error,
		Retryable: it.Retryable(),
		Attempt:   it.Attempt,
	}
	if it.Record != nil {
		v.RecordID = it.Record.ID
		v.Location = it.Record.Location
		v.Tags = append([]string(nil), it.Record.Tags...)
	}
	return v
}
