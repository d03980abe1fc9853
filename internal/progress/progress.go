// Package progress renders upload and encode progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter follows the byte progress of a single encode.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// Func adapts r to the encoder's (read, total) callback.
func Func(r Reporter) func(read, total int64) {
	return func(read, _ int64) { r.Update(read) }
}

// CLIProgress draws one byte-counting bar.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a new CLI progress reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return NewCLIProgressTo(os.Stderr)
}

// NewCLIProgressTo creates a CLI progress reporter writing to w.
func NewCLIProgressTo(w io.Writer) *CLIProgress {
	return &CLIProgress{out: w}
}

func (p *CLIProgress) Start(total int64, description string) {
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func (p *CLIProgress) Error(err error) {
	if p.bar != nil {
		_ = p.bar.Exit()
	}
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// NoOpProgress discards everything; used when stderr is not a terminal.
type NoOpProgress struct{}

func NewNoOpProgress() *NoOpProgress { return &NoOpProgress{} }

func (NoOpProgress) Start(int64, string) {}
func (NoOpProgress) Update(int64)        {}
func (NoOpProgress) Finish()             {}
func (NoOpProgress) Error(error)         {}
