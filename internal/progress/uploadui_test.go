package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rescale/photoup/internal/events"
)

func itemEvent(t events.EventType, id, name string, progress int) *events.ItemEvent {
	return &events.ItemEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: time.Now()},
		ItemID:    id,
		Name:      name,
		Size:      2 * 1024 * 1024,
		Progress:  progress,
	}
}

func TestPlainUploadUI(t *testing.T) {
	var buf bytes.Buffer
	ui := NewPlainUploadUI(2, &buf)

	ch := make(chan events.Event, 16)
	ok := itemEvent(events.EventItemSucceeded, "a", "beach.png", 100)
	ok.RecordID = "42"
	failed := itemEvent(events.EventItemFailed, "b", "dog.png", 100)
	failed.Error = "store returned 400: file_name cannot be empty"

	ch <- itemEvent(events.EventItemQueued, "a", "beach.png", 0)
	ch <- itemEvent(events.EventItemEncoding, "a", "beach.png", 1)
	ch <- itemEvent(events.EventItemEncoding, "b", "dog.png", 1)
	ch <- itemEvent(events.EventItemProgress, "a", "beach.png", 70)
	ch <- ok
	ch <- failed
	ch <- &events.BatchEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventBatchCompleted, Time: time.Now()},
		Total:     2,
		Success:   1,
		Failed:    1,
		Advisory:  "1 of 2 uploads failed and were rejected; retrying unchanged files will not help.",
	}

	go ui.Consume(ch)
	ui.Finish()
	ui.Finish() // idempotent

	out := buf.String()
	for _, want := range []string{
		"Uploading [1/2] beach.png (2.0 MiB)",
		"Uploading [2/2] dog.png (2.0 MiB)",
		"✓ beach.png (record 42",
		"✗ dog.png: store returned 400: file_name cannot be empty",
		"1 uploaded, 1 failed of 2",
		"retrying unchanged files will not help.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if ui.IsTerminal() {
		t.Error("plain UI must not report a terminal")
	}
	if ui.Writer() != &buf {
		t.Error("plain UI writer should be the output buffer")
	}
}

func TestPlainUploadUI_TerminalEventWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	ui := NewPlainUploadUI(1, &buf)

	ch := make(chan events.Event, 4)
	evt := itemEvent(events.EventItemFailed, "x", "lost.png", 100)
	evt.Error = "network error: connection reset"
	ch <- evt
	ch <- evt // duplicate is ignored

	go ui.Consume(ch)
	ui.Finish()

	if n := strings.Count(buf.String(), "✗ lost.png"); n != 1 {
		t.Errorf("expected one failure line, got %d:\n%s", n, buf.String())
	}
}

func TestConsumeStopsOnClosedChannel(t *testing.T) {
	ui := NewPlainUploadUI(0, &bytes.Buffer{})
	ch := make(chan events.Event)
	close(ch)

	done := make(chan struct{})
	go func() {
		ui.Consume(ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return on a closed channel")
	}
	ui.Finish()
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"file.png", 2, "file.png"},
		{"a/file.png", 2, "file.png"},
		{"/a/b/c/file.png", 2, "…/c/file.png"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.n); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
	}
}

func TestCLIProgressError(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgressTo(&buf)
	p.Start(10, "encoding")
	p.Update(10)
	p.Finish()
	p.Error(errors.New("disk unplugged"))

	if !strings.Contains(buf.String(), "Error: disk unplugged") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
