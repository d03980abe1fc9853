package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/photoup/internal/encode"
	"github.com/rescale/photoup/internal/events"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/preview"
	"github.com/rescale/photoup/internal/store"
	"github.com/rescale/photoup/internal/util/sanitize"
)

// ErrBusy is returned by Submit and RetryFailed while another run is in flight.
var ErrBusy = errors.New("a batch run is already in progress")

// Options configures a Controller.
type Options struct {
	Store       store.Store
	Encoder     *encode.Encoder   // Defaults to encode.NewEncoder(0)
	Concurrency int               // Clamped to 1..32; 0 means 4
	EventBus    *events.EventBus  // Optional
	Logger      *logging.Logger   // Optional
	Previews    *preview.Registry // Defaults to a private registry

	// OnSuccess is called once after a run in which every attempted item
	// succeeded. It is not called for runs with failures.
	OnSuccess func(Summary)
}

// Result describes one Submit or RetryFailed call.
type Result struct {
	Ran        bool // False when there was nothing to do
	Retry      bool
	Attempted  int
	HadFailure bool
	Summary    Summary
	Duration   time.Duration
}

// Controller owns the current selection and runs it through the scheduler.
//
// The item set is copy-on-write: readers load the current snapshot without
// locking, and every change replaces a whole item by ID. Only one run is in
// flight at a time.
type Controller struct {
	store     store.Store
	encoder   *encode.Encoder
	scheduler *Scheduler
	bus       *events.EventBus
	logger    *logging.Logger
	previews  *preview.Registry
	onSuccess func(Summary)

	set      atomic.Pointer[itemSet]
	writeMu  sync.Mutex // Serializes writers; readers never take it
	gen      atomic.Uint64
	busy     atomic.Bool
	advisory atomic.Pointer[string]
}

// NewController creates a controller with an empty batch.
func NewController(opts Options) *Controller {
	if opts.Encoder == nil {
		opts.Encoder = encode.NewEncoder(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Previews == nil {
		opts.Previews = preview.NewRegistry()
	}

	c := &Controller{
		store:     opts.Store,
		encoder:   opts.Encoder,
		scheduler: NewScheduler(opts.Concurrency),
		bus:       opts.EventBus,
		logger:    opts.Logger,
		previews:  opts.Previews,
		onSuccess: opts.OnSuccess,
	}
	c.set.Store(newItemSet(0, nil))
	c.setAdvisory("")
	return c
}

// Concurrency returns the worker limit used for runs.
func (c *Controller) Concurrency() int {
	return c.scheduler.Concurrency()
}

// Select replaces the whole batch with one queued item per source and
// releases the previews of the items it replaces. An empty list clears the
// batch. A run in flight keeps going on its own snapshot, but its updates
// no longer reach the new items.
func (c *Controller) Select(sources []encode.Source) []ItemView {
	items := make([]Item, 0, len(sources))
	for i, src := range sources {
		location := src.Path
		if location == "" {
			location = src.Name
		}
		items = append(items, NewItem(i, src, c.previews.Acquire(location)))
	}

	c.writeMu.Lock()
	old := c.set.Load()
	next := newItemSet(c.gen.Add(1), items)
	c.set.Store(next)
	c.setAdvisory("")
	c.writeMu.Unlock()

	released := 0
	for _, it := range old.items {
		if c.previews.Release(it.Preview) {
			released++
		}
	}

	c.logger.Debug().
		Int("items", len(items)).
		Int("released_previews", released).
		Msg("selection replaced")

	c.publishBatch(events.EventBatchSelected, false, next.summary(), "", 0)
	for _, it := range next.ordered() {
		c.publishItem(events.EventItemQueued, it)
	}

	views := make([]ItemView, len(items))
	for i, it := range next.ordered() {
		views[i] = it.View()
	}
	return views
}

// Submit runs every item in the batch. It resets all items to queued first.
// It returns ErrBusy while another run is in flight and a Result with
// Ran == false when the batch is empty.
func (c *Controller) Submit(ctx context.Context) (Result, error) {
	return c.run(ctx, false)
}

// RetryFailed runs only the items currently in error, leaving the rest
// untouched. It is a no-op when no item has failed.
func (c *Controller) RetryFailed(ctx context.Context) (Result, error) {
	return c.run(ctx, true)
}

func (c *Controller) run(ctx context.Context, retry bool) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{Retry: retry}, ErrBusy
	}
	defer c.busy.Store(false)

	start := time.Now()

	// Pick and reset the attempted items in one swap.
	c.writeMu.Lock()
	cur := c.set.Load()
	var ids []string
	if retry {
		ids = cur.ids(func(it Item) bool { return it.Status == StatusError })
	} else {
		ids = cur.ids(nil)
	}
	if len(ids) == 0 {
		c.writeMu.Unlock()
		return Result{Retry: retry, Summary: cur.summary()}, nil
	}

	reset := make([]Item, 0, len(ids))
	for _, id := range ids {
		it, _ := cur.get(id)
		reset = append(reset, it.queued())
	}
	snapshot := cur.with(reset...)
	c.set.Store(snapshot)
	c.setAdvisory("")
	c.writeMu.Unlock()

	gen := snapshot.gen
	c.publishBatch(events.EventBatchStarted, retry, snapshot.summary(), "", 0)
	for _, it := range reset {
		c.publishItem(events.EventItemQueued, it)
	}

	c.logger.Info().
		Bool("retry", retry).
		Int("items", len(ids)).
		Int("concurrency", c.scheduler.Concurrency()).
		Msg("batch run started")

	sched := &Scheduler{
		concurrency: c.scheduler.Concurrency(),
		OnError: func(index int, err error) {
			c.fail(reset[index].ID, reset[index].Attempt, err)
		},
	}
	hadFailure := sched.Run(ctx, len(reset), func(ctx context.Context, index int) error {
		return c.process(ctx, reset[index])
	})

	res := Result{
		Ran:        true,
		Retry:      retry,
		Attempted:  len(ids),
		HadFailure: hadFailure,
		Duration:   time.Since(start),
	}

	// The outcome is decided under writeMu so a concurrent Select either
	// lands before (outcome discarded) or after (outcome reported).
	c.writeMu.Lock()
	if c.gen.Load() != gen {
		c.writeMu.Unlock()
		res.Summary = c.Summary()
		c.logger.Debug().Msg("selection replaced during run; outcome discarded")
		return res, nil
	}

	res.Summary = c.Summary()
	advisory := ""
	if hadFailure {
		advisory = c.buildAdvisory()
		c.setAdvisory(advisory)
	}
	c.publishBatch(events.EventBatchCompleted, retry, res.Summary, advisory, res.Duration)
	c.writeMu.Unlock()

	c.logger.Info().
		Bool("retry", retry).
		Int("success", res.Summary.Success).
		Int("failed", res.Summary.Failed).
		Dur("duration", res.Duration).
		Msg("batch run completed")

	// Called outside the lock so the callback may Select.
	if !hadFailure && c.onSuccess != nil {
		c.onSuccess(res.Summary)
	}
	return res, nil
}

// process encodes then transmits one item. Errors are recorded by the
// scheduler's OnError hook.
func (c *Controller) process(ctx context.Context, it Item) error {
	attempt := it.Attempt

	if !c.update(it.ID, func(cur Item) (Item, bool) {
		if cur.Attempt != attempt || cur.Status != StatusQueued {
			return cur, false
		}
		return cur.encoding(time.Now()), true
	}, events.EventItemEncoding) {
		c.logger.Debug().Str("item", it.ID).Msg("item no longer current; processing anyway")
	}

	name, err := sanitize.FileName(it.Source.Name)
	if err != nil {
		return fmt.Errorf("invalid file name %q: %w", it.Source.Name, err)
	}

	payload, err := c.encoder.Encode(ctx, it.Source, func(read, total int64) {
		c.progress(it.ID, attempt, EncodeProgress(read, total))
	})
	if err != nil {
		return err
	}

	c.update(it.ID, func(cur Item) (Item, bool) {
		if cur.Attempt != attempt || cur.Status != StatusEncoding {
			return cur, false
		}
		return cur.uploading(), true
	}, events.EventItemUploading)

	rec, err := store.Send(ctx, c.store, store.Request{
		FileName:    name,
		Payload:     payload.Base64,
		ContentType: payload.ContentType,
	}, func(sent, total int64) {
		c.progress(it.ID, attempt, TransmitProgress(sent, total))
	})
	if err != nil {
		return err
	}

	c.update(it.ID, func(cur Item) (Item, bool) {
		if cur.Attempt != attempt || cur.Status != StatusUploading {
			return cur, false
		}
		return cur.succeeded(rec, time.Now()), true
	}, events.EventItemSucceeded)

	c.logger.Debug().
		Str("item", it.ID).
		Str("file", name).
		Str("record", rec.ID).
		Msg("item uploaded")
	return nil
}

func (c *Controller) progress(id string, attempt, p int) {
	c.update(id, func(cur Item) (Item, bool) {
		if cur.Attempt != attempt {
			return cur, false
		}
		return cur.advance(p)
	}, events.EventItemProgress)
}

func (c *Controller) fail(id string, attempt int, err error) {
	c.update(id, func(cur Item) (Item, bool) {
		if cur.Attempt != attempt || cur.Status.Terminal() {
			return cur, false
		}
		return cur.failed(err, time.Now()), true
	}, events.EventItemFailed)

	c.logger.Warn().Err(err).Str("item", id).Msg("item failed")
}

// update replaces the item with id by fn's result. Updates for IDs outside
// the current set are dropped. It reports whether a change was applied.
func (c *Controller) update(id string, fn func(Item) (Item, bool), evt events.EventType) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.set.Load()
	it, ok := cur.get(id)
	if !ok {
		return false
	}
	next, changed := fn(it)
	if !changed {
		return false
	}
	c.set.Store(cur.with(next))
	c.publishItem(evt, next)
	return true
}

// Summary derives the aggregate counts from the current items.
func (c *Controller) Summary() Summary {
	return c.set.Load().summary()
}

// Items returns snapshots of all items in selection order.
func (c *Controller) Items() []ItemView {
	items := c.set.Load().ordered()
	views := make([]ItemView, len(items))
	for i, it := range items {
		views[i] = it.View()
	}
	return views
}

// Item returns the snapshot of one item.
func (c *Controller) Item(id string) (ItemView, bool) {
	it, ok := c.set.Load().get(id)
	if !ok {
		return ItemView{}, false
	}
	return it.View(), true
}

// Advisory returns the batch-level message left by the last run with
// failures, or "" when there is none.
func (c *Controller) Advisory() string {
	return *c.advisory.Load()
}

// Busy reports whether a run is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Close clears the batch and releases every preview it holds.
func (c *Controller) Close() {
	c.Select(nil)
}

func (c *Controller) setAdvisory(msg string) {
	c.advisory.Store(&msg)
}

func (c *Controller) buildAdvisory() string {
	var failed, retryable int
	items := c.set.Load().ordered()
	for _, it := range items {
		if it.Status != StatusError {
			continue
		}
		failed++
		if it.Retryable() {
			retryable++
		}
	}
	return Advisory(failed, len(items), retryable)
}

// Advisory formats the one-sentence batch message for failed of total items,
// of which retryable failed with a server or network error.
func Advisory(failed, total, retryable int) string {
	noun := "uploads"
	if total == 1 {
		noun = "upload"
	}
	switch {
	case failed == 0:
		return ""
	case retryable == failed:
		return fmt.Sprintf("%d of %d %s failed with server or network errors; retrying may help.", failed, total, noun)
	case retryable == 0:
		return fmt.Sprintf("%d of %d %s failed and were rejected; retrying unchanged files will not help.", failed, total, noun)
	default:
		return fmt.Sprintf("%d of %d %s failed; %d may succeed on retry.", failed, total, noun, retryable)
	}
}

func (c *Controller) publishItem(t events.EventType, it Item) {
	if c.bus == nil {
		return
	}
	evt := &events.ItemEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: time.Now()},
		ItemID:    it.ID,
		Index:     it.Index,
		Name:      it.Source.Name,
		Size:      it.Source.Size,
		Status:    string(it.Status),
		Progress:  it.Progress,
		Error:     it.Error,
	}
	if it.Record != nil {
		evt.RecordID = it.Record.ID
	}
	c.bus.Publish(evt)
}

func (c *Controller) publishBatch(t events.EventType, retry bool, sum Summary, advisory string, d time.Duration) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(&events.BatchEvent{
		BaseEvent:  events.BaseEvent{EventType: t, Time: time.Now()},
		Retry:      retry,
		Total:      sum.Total,
		Success:    sum.Success,
		Failed:     sum.Failed,
		InProgress: sum.InProgress,
		Advisory:   advisory,
		Duration:   d,
	})
}
