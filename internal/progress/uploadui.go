package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/events"
)

// UploadUI draws one bar per item from the controller's item events.
// Bars track the blended item percentage, not bytes.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	// Owned by the Consume goroutine
	bars    map[string]*itemBar
	total   int
	started int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type itemBar struct {
	bar       *mpb.Bar
	index     int
	name      string
	size      int64
	startTime time.Time
	finished  bool
}

// NewUploadUI creates a UI on stderr for a run of total items. Bars are
// drawn only when stderr is a terminal.
func NewUploadUI(total int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		enableANSIOnWindows(os.Stderr)
	}
	return newUploadUI(total, os.Stderr, isTerminal)
}

// NewPlainUploadUI creates a UI that prints one line per item event to w.
func NewPlainUploadUI(total int, w io.Writer) *UploadUI {
	return newUploadUI(total, w, false)
}

func newUploadUI(total int, w io.Writer, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(constants.ProgressBarWidth),
		)
	} else {
		// Non-TTY: disable progress bars, just use text output
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        w,
		isTerminal: isTerminal,
		bars:       make(map[string]*itemBar),
		total:      total,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Consume renders events from ch until Finish is called. Run it in its own
// goroutine with a subscription taken before the run starts.
func (u *UploadUI) Consume(ch <-chan events.Event) {
	defer close(u.done)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			u.handle(e)
		case <-u.stop:
			// Render whatever was published before the run returned.
			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return
					}
					u.handle(e)
				default:
					return
				}
			}
		}
	}
}

// Finish stops Consume, aborts bars that never reached a terminal event and
// waits for the bars to be flushed. Safe to call more than once.
func (u *UploadUI) Finish() {
	u.stopOnce.Do(func() {
		close(u.stop)
		<-u.done

		for _, b := range u.bars {
			if !b.finished && b.bar != nil {
				b.bar.Abort(true)
			}
		}
		u.progress.Wait()
	})
}

func (u *UploadUI) handle(e events.Event) {
	switch evt := e.(type) {
	case *events.ItemEvent:
		u.handleItem(evt)
	case *events.BatchEvent:
		if evt.EventType == events.EventBatchCompleted {
			u.printSummary(evt)
		}
	}
}

func (u *UploadUI) handleItem(evt *events.ItemEvent) {
	switch evt.EventType {
	case events.EventItemEncoding:
		u.startBar(evt)
	case events.EventItemUploading, events.EventItemProgress:
		if b, ok := u.bars[evt.ItemID]; ok && b.bar != nil && !b.finished {
			b.bar.SetCurrent(int64(evt.Progress))
		}
	case events.EventItemSucceeded:
		u.finishBar(evt, nil)
	case events.EventItemFailed:
		u.finishBar(evt, fmt.Errorf("%s", evt.Error))
	}
}

func (u *UploadUI) startBar(evt *events.ItemEvent) {
	// A retry reuses the item id; drop the bar from the previous attempt.
	if old, ok := u.bars[evt.ItemID]; ok && old.bar != nil && !old.finished {
		old.bar.Abort(true)
	}

	u.started++
	b := &itemBar{
		index:     u.started,
		name:      evt.Name,
		size:      evt.Size,
		startTime: time.Now(),
	}
	u.bars[evt.ItemID] = b

	label := fmt.Sprintf("[%d/%d] %s (%.1f MiB)", b.index, u.total, truncatePath(b.name, 2), mib(b.size))

	if u.isTerminal {
		b.bar = u.progress.New(int64(constants.ProgressDone),
			// Custom bar style with Unicode block characters
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
		b.bar.SetCurrent(int64(evt.Progress))
		return
	}

	fmt.Fprintf(u.out, "Uploading %s\n", label)
}

func (u *UploadUI) finishBar(evt *events.ItemEvent, err error) {
	b, ok := u.bars[evt.ItemID]
	if !ok {
		// Events for an item whose start was never seen (dropped or from
		// before the subscription); report the outcome anyway.
		b = &itemBar{name: evt.Name, size: evt.Size, startTime: time.Now()}
		u.bars[evt.ItemID] = b
	}
	if b.finished {
		return
	}
	b.finished = true
	elapsed := time.Since(b.startTime).Round(time.Millisecond)

	var msg string
	if err == nil {
		if b.bar != nil {
			b.bar.SetCurrent(int64(constants.ProgressDone))
		}
		msg = fmt.Sprintf("✓ %s (record %s, %.1f MiB, %s)\n", truncatePath(b.name, 2), evt.RecordID, mib(b.size), elapsed)
	} else {
		if b.bar != nil {
			b.bar.Abort(false) // false = keep the failed bar visible
		}
		msg = fmt.Sprintf("✗ %s: %v\n", truncatePath(b.name, 2), err)
	}
	u.write(msg)
}

func (u *UploadUI) printSummary(evt *events.BatchEvent) {
	u.write(fmt.Sprintf("%d uploaded, %d failed of %d (%s)\n",
		evt.Success, evt.Failed, evt.Total, evt.Duration.Round(time.Millisecond)))
	if evt.Advisory != "" {
		u.write(evt.Advisory + "\n")
	}
}

// write prints above the bars when they are active.
func (u *UploadUI) write(msg string) {
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	_, _ = io.WriteString(u.out, msg)
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if progress bars are active.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

func mib(size int64) float64 {
	return float64(size) / (1024 * 1024)
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for ANSI escape sequences.
// This is a no-op on non-Windows platforms.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
