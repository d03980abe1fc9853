package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rescale/photoup/internal/encode"
	"github.com/rescale/photoup/internal/events"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/preview"
	"github.com/rescale/photoup/internal/store"
)

// fakeStore acknowledges every item unless its name is listed in fail.
type fakeStore struct {
	mu      sync.Mutex
	fail    map[string]error
	puts    []string
	steps   [][2]int64 // Progress reports sent before acknowledging
	before  func(name string)
	active  atomic.Int32
	peak    atomic.Int32
	counter atomic.Int64
}

func (f *fakeStore) Put(ctx context.Context, req store.Request, progress store.ProgressFunc) (*models.Record, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.puts = append(f.puts, req.FileName)
	err := f.fail[req.FileName]
	steps := f.steps
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(req.FileName)
	}
	for _, s := range steps {
		progress(s[0], s[1])
	}
	if err != nil {
		return nil, err
	}
	id := f.counter.Add(1)
	return &models.Record{ID: string(rune('0' + id)), FileName: req.FileName}, nil
}

func (f *fakeStore) setFail(m map[string]error) {
	f.mu.Lock()
	f.fail = m
	f.mu.Unlock()
}

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func sources(names ...string) []encode.Source {
	out := make([]encode.Source, len(names))
	for i, n := range names {
		out[i] = encode.BytesSource(n, []byte("content of "+n))
	}
	return out
}

func TestSubmit_TwoFilesScenario(t *testing.T) {
	const mb = 1 << 20

	// Both sources block on first read until both are open, so the test
	// only passes if the two encodes overlap.
	var opened sync.WaitGroup
	opened.Add(2)
	gated := func(name string, size int) encode.Source {
		data := bytes.Repeat([]byte{0xAB}, size)
		return encode.Source{
			Name: name,
			Size: int64(size),
			Open: func() (io.ReadCloser, error) {
				opened.Done()
				opened.Wait()
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		}
	}

	// Both transmits must overlap too.
	var sending sync.WaitGroup
	sending.Add(2)
	fs := &fakeStore{
		steps: [][2]int64{{1, 2}, {2, 2}},
		before: func(string) {
			sending.Done()
			sending.Wait()
		},
	}

	var callbacks atomic.Int32
	c := NewController(Options{
		Store:       fs,
		Concurrency: 4,
		OnSuccess:   func(Summary) { callbacks.Add(1) },
	})
	c.Select([]encode.Source{gated("fileA.png", mb), gated("fileB.png", 2*mb)})

	done := make(chan Result)
	go func() {
		res, err := c.Submit(context.Background())
		if err != nil {
			t.Errorf("Submit: %v", err)
		}
		done <- res
	}()

	var res Result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("encodes or transmits did not run concurrently")
	}

	want := Summary{Total: 2, Success: 2}
	if res.Summary != want || c.Summary() != want {
		t.Errorf("expected summary %+v, got %+v / %+v", want, res.Summary, c.Summary())
	}
	for _, v := range c.Items() {
		if v.Status != StatusSuccess || v.Progress != 100 {
			t.Errorf("%s: expected success at 100, got %s %d", v.Name, v.Status, v.Progress)
		}
	}
	if callbacks.Load() != 1 {
		t.Errorf("expected success callback once, got %d", callbacks.Load())
	}
	if c.Advisory() != "" {
		t.Errorf("expected no advisory, got %q", c.Advisory())
	}
}

func TestSubmit_ConcurrencyNeverExceedsLimit(t *testing.T) {
	fs := &fakeStore{}
	c := NewController(Options{Store: fs, Concurrency: 3})

	var peakInProgress atomic.Int32
	fs.before = func(string) {
		n := int32(c.Summary().InProgress)
		for {
			p := peakInProgress.Load()
			if n <= p || peakInProgress.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
	}

	c.Select(sources("1.png", "2.png", "3.png", "4.png", "5.png", "6.png", "7.png", "8.png", "9.png", "10.png"))
	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !res.Summary.Done() || res.Summary.Success != 10 {
		t.Errorf("expected all 10 done, got %+v", res.Summary)
	}
	if p := fs.peak.Load(); p > 3 {
		t.Errorf("store saw %d concurrent puts, limit 3", p)
	}
	if p := peakInProgress.Load(); p > 3 {
		t.Errorf("summary reported %d in progress, limit 3", p)
	}
}

func TestSubmit_PartialFailureIsolation(t *testing.T) {
	fs := &fakeStore{fail: map[string]error{"a.png": store.NewStatusError(500, "tagging failed")}}
	var callbacks atomic.Int32
	c := NewController(Options{Store: fs, OnSuccess: func(Summary) { callbacks.Add(1) }})
	c.Select(sources("a.png", "b.png"))

	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.HadFailure {
		t.Error("expected HadFailure")
	}

	items := c.Items()
	if items[0].Status != StatusError || items[0].Progress != 100 {
		t.Errorf("a.png: expected error at 100, got %s %d", items[0].Status, items[0].Progress)
	}
	if items[0].Error != "store returned 500: tagging failed" {
		t.Errorf("a.png: unexpected error %q", items[0].Error)
	}
	if items[1].Status != StatusSuccess || items[1].Progress != 100 {
		t.Errorf("b.png: expected success at 100, got %s %d", items[1].Status, items[1].Progress)
	}

	sum := c.Summary()
	if sum.Success != 1 || sum.Failed != 1 {
		t.Errorf("expected success=1 failed=1, got %+v", sum)
	}
	if callbacks.Load() != 0 {
		t.Error("success callback must not fire when an item failed")
	}
	if want := "1 of 2 uploads failed with server or network errors; retrying may help."; c.Advisory() != want {
		t.Errorf("unexpected advisory %q", c.Advisory())
	}
}

func TestRetryFailed_NoFailuresIsNoop(t *testing.T) {
	fs := &fakeStore{}
	c := NewController(Options{Store: fs})
	c.Select(sources("a.png", "b.png"))
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	before := c.Items()
	puts := fs.putCount()

	res, err := c.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if res.Ran {
		t.Error("retry with no failures must not run")
	}
	if fs.putCount() != puts {
		t.Error("retry with no failures must not call the store")
	}
	if !reflect.DeepEqual(before, c.Items()) {
		t.Error("retry with no failures must not touch items")
	}
}

func TestRetryFailed_OnlyRerunsFailedItems(t *testing.T) {
	fs := &fakeStore{fail: map[string]error{
		"1.png": store.NewNetworkError(errors.New("connection reset")),
		"2.png": store.NewStatusError(503, ""),
	}}
	var callbacks atomic.Int32
	c := NewController(Options{Store: fs, OnSuccess: func(Summary) { callbacks.Add(1) }})
	c.Select(sources("1.png", "2.png", "3.png"))

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	before := c.Items()
	if before[0].Status != StatusError || before[1].Status != StatusError || before[2].Status != StatusSuccess {
		t.Fatalf("unexpected first-run states: %s %s %s", before[0].Status, before[1].Status, before[2].Status)
	}

	fs.setFail(nil)
	puts := fs.putCount()

	res, err := c.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if !res.Ran || !res.Retry || res.Attempted != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if got := fs.putCount() - puts; got != 2 {
		t.Errorf("expected 2 puts on retry, got %d", got)
	}

	after := c.Items()
	if !reflect.DeepEqual(before[2], after[2]) {
		t.Errorf("successful item changed on retry:\nbefore %+v\nafter  %+v", before[2], after[2])
	}
	for _, i := range []int{0, 1} {
		if after[i].ID != before[i].ID {
			t.Errorf("item %d: retry must keep the id", i)
		}
		if after[i].Status != StatusSuccess || after[i].Attempt != 2 || after[i].Error != "" {
			t.Errorf("item %d: expected success on attempt 2, got %+v", i, after[i])
		}
	}
	if callbacks.Load() != 1 {
		t.Errorf("expected callback after the clean retry, got %d", callbacks.Load())
	}
	if c.Advisory() != "" {
		t.Errorf("advisory should clear after a clean retry, got %q", c.Advisory())
	}
}

func TestSelect_ReplacesBatchAndReleasesPreviews(t *testing.T) {
	reg := preview.NewRegistry()
	fs := &fakeStore{fail: map[string]error{"bad.png": store.NewStatusError(400, "")}}
	c := NewController(Options{Store: fs, Previews: reg})

	old := c.Select(sources("ok.png", "bad.png"))
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.Advisory() == "" {
		t.Fatal("expected an advisory after a failure")
	}

	fresh := c.Select(sources("new1.png", "new2.png", "new3.png"))

	if reg.Live() != 3 {
		t.Errorf("expected 3 live previews, got %d", reg.Live())
	}
	for _, v := range old {
		if _, ok := reg.Resolve(v.Preview); ok {
			t.Errorf("preview of %s was not released", v.Name)
		}
		if _, ok := c.Item(v.ID); ok {
			t.Errorf("old item %s still present", v.Name)
		}
	}
	for _, v := range fresh {
		if v.Status != StatusQueued || v.Progress != 0 {
			t.Errorf("%s: expected fresh queued item, got %s %d", v.Name, v.Status, v.Progress)
		}
	}
	if c.Advisory() != "" {
		t.Error("select must clear the advisory")
	}
	if got := c.Summary(); got != (Summary{Total: 3}) {
		t.Errorf("unexpected summary %+v", got)
	}

	c.Close()
	if reg.Live() != 0 {
		t.Errorf("close must release all previews, %d live", reg.Live())
	}
	if c.Summary().Total != 0 {
		t.Error("close must clear the batch")
	}
}

func TestSubmit_OutcomeNeverReportsReplacedBatch(t *testing.T) {
	for i := 0; i < 200; i++ {
		var reported []Summary
		var mu sync.Mutex
		c := NewController(Options{
			Store: &fakeStore{},
			OnSuccess: func(sum Summary) {
				mu.Lock()
				reported = append(reported, sum)
				mu.Unlock()
			},
		})
		c.Select(sources("a.png", "b.png"))

		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := c.Submit(context.Background()); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
		c.Select(sources("x.png", "y.png", "z.png"))
		<-done

		mu.Lock()
		for _, sum := range reported {
			if sum != (Summary{Total: 2, Success: 2}) {
				t.Fatalf("iteration %d: success reported with summary %+v of another batch", i, sum)
			}
		}
		mu.Unlock()
		c.Close()
	}
}

func TestSubmit_SuccessCallbackMaySelect(t *testing.T) {
	var c *Controller
	c = NewController(Options{
		Store: &fakeStore{},
		OnSuccess: func(Summary) {
			c.Select(sources("next.png"))
		},
	})
	c.Select(sources("a.png"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Submit(context.Background()); err != nil {
			t.Errorf("Submit: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Select from the success callback deadlocked")
	}
	if got := c.Summary(); got != (Summary{Total: 1}) {
		t.Errorf("expected the new selection, got %+v", got)
	}
}

func TestProgressIsMonotonicWithinAttempt(t *testing.T) {
	bus := events.NewEventBus(10000)
	defer bus.Close()
	ch := bus.SubscribeAll()

	fs := &fakeStore{steps: [][2]int64{{10, 100}, {60, 100}, {20, 100}, {90, 100}}}
	c := NewController(Options{
		Store:    fs,
		EventBus: bus,
		Encoder:  encode.NewEncoder(3),
	})
	c.Select([]encode.Source{encode.BytesSource("a.png", []byte(strings.Repeat("x", 30)))})
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var seq []int
	started := false
drain:
	for {
		select {
		case e := <-ch:
			ie, ok := e.(*events.ItemEvent)
			if !ok {
				continue
			}
			if ie.EventType == events.EventItemQueued {
				started = true
				seq = seq[:0]
				continue
			}
			if started {
				seq = append(seq, ie.Progress)
			}
		default:
			break drain
		}
	}

	if len(seq) < 3 {
		t.Fatalf("expected several progress events, got %v", seq)
	}
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			t.Fatalf("progress went backwards: %v", seq)
		}
	}
	if seq[len(seq)-1] != 100 {
		t.Errorf("expected final progress 100, got %v", seq)
	}
	if n := bus.ResetDroppedEventCount(); n != 0 {
		t.Errorf("dropped %d events", n)
	}
}

func TestSubmit_RejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	fs := &fakeStore{before: func(string) { <-release }}
	c := NewController(Options{Store: fs})
	c.Select(sources("a.png"))

	done := make(chan error)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !c.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Submit: expected ErrBusy, got %v", err)
	}
	if _, err := c.RetryFailed(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("RetryFailed during run: expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Submit: %v", err)
	}
	if c.Busy() {
		t.Error("controller still busy after run")
	}
}

func TestSubmit_EmptyBatchIsNoop(t *testing.T) {
	fs := &fakeStore{}
	var callbacks atomic.Int32
	c := NewController(Options{Store: fs, OnSuccess: func(Summary) { callbacks.Add(1) }})

	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Ran || fs.putCount() != 0 || callbacks.Load() != 0 {
		t.Errorf("empty submit must do nothing, got %+v", res)
	}
}

func TestSelectDuringRun_StaleWritesAreInert(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	fs := &fakeStore{before: func(string) {
		entered <- struct{}{}
		<-release
	}}
	var callbacks atomic.Int32
	c := NewController(Options{Store: fs, OnSuccess: func(Summary) { callbacks.Add(1) }})
	c.Select(sources("old.png"))

	done := make(chan Result)
	go func() {
		res, _ := c.Submit(context.Background())
		done <- res
	}()
	<-entered

	fresh := c.Select(sources("new.png"))
	close(release)
	res := <-done

	if !res.Ran {
		t.Error("in-flight run should finish on its own snapshot")
	}
	v, ok := c.Item(fresh[0].ID)
	if !ok {
		t.Fatal("new item missing")
	}
	if v.Status != StatusQueued || v.Progress != 0 {
		t.Errorf("new item touched by stale run: %s %d", v.Status, v.Progress)
	}
	if callbacks.Load() != 0 {
		t.Error("a superseded run must not fire the success callback")
	}
	if c.Summary() != (Summary{Total: 1}) {
		t.Errorf("unexpected summary %+v", c.Summary())
	}
}

func TestSubmit_ReadErrorFailsItemWithoutTransmit(t *testing.T) {
	fs := &fakeStore{}
	c := NewController(Options{Store: fs})
	c.Select([]encode.Source{
		{Name: "locked.png", Size: 10, Open: func() (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		}},
		encode.BytesSource("fine.png", []byte("ok")),
	})

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	items := c.Items()
	if items[0].Status != StatusError || items[0].Progress != 100 {
		t.Errorf("expected error at 100, got %s %d", items[0].Status, items[0].Progress)
	}
	if !strings.Contains(items[0].Error, "permission denied") {
		t.Errorf("unexpected error %q", items[0].Error)
	}
	if items[0].Retryable {
		t.Error("read errors are not retryable")
	}
	if fs.putCount() != 1 {
		t.Errorf("only the readable file should reach the store, got %d puts", fs.putCount())
	}
	if want := "1 of 2 uploads failed and were rejected; retrying unchanged files will not help."; c.Advisory() != want {
		t.Errorf("unexpected advisory %q", c.Advisory())
	}
}

func TestSubmit_SanitizesNamesBeforeTransmit(t *testing.T) {
	fs := &fakeStore{}
	c := NewController(Options{Store: fs})
	c.Select([]encode.Source{
		encode.BytesSource("my holiday photo.png", []byte("x")),
		encode.BytesSource("   ", []byte("x")),
	})

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(fs.puts) != 1 || fs.puts[0] != "my_holiday_photo.png" {
		t.Errorf("unexpected store names %v", fs.puts)
	}
	if c.Items()[1].Status != StatusError {
		t.Error("blank name should fail the item")
	}
}

type panickingStore struct{}

func (panickingStore) Put(ctx context.Context, req store.Request, progress store.ProgressFunc) (*models.Record, error) {
	if req.FileName == "bad.png" {
		panic("backend bug")
	}
	return &models.Record{ID: "1"}, nil
}

func TestSubmit_PanicFailsOnlyThatItem(t *testing.T) {
	c := NewController(Options{Store: panickingStore{}})
	c.Select(sources("bad.png", "good.png"))

	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	items := c.Items()
	if items[0].Status != StatusError || items[0].Error != "panic: backend bug" {
		t.Errorf("unexpected panicking item %+v", items[0])
	}
	if items[1].Status != StatusSuccess {
		t.Errorf("sibling should succeed, got %s", items[1].Status)
	}
	if !res.HadFailure {
		t.Error("expected HadFailure")
	}
}

func TestAdvisory(t *testing.T) {
	tests := []struct {
		failed, total, retryable int
		want                     string
	}{
		{0, 3, 0, ""},
		{1, 1, 1, "1 of 1 upload failed with server or network errors; retrying may help."},
		{2, 5, 0, "2 of 5 uploads failed and were rejected; retrying unchanged files will not help."},
		{3, 5, 1, "3 of 5 uploads failed; 1 may succeed on retry."},
	}
	for _, tt := range tests {
		if got := Advisory(tt.failed, tt.total, tt.retryable); got != tt.want {
			t.Errorf("Advisory(%d, %d, %d) = %q, want %q", tt.failed, tt.total, tt.retryable, got, tt.want)
		}
	}
}
