package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/encode"
	"github.com/rescale/photoup/internal/events"
	inthttp "github.com/rescale/photoup/internal/http"
	"github.com/rescale/photoup/internal/localfs"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/notify"
	"github.com/rescale/photoup/internal/progress"
	"github.com/rescale/photoup/internal/store"
	"github.com/rescale/photoup/internal/store/backends"
	"github.com/rescale/photoup/internal/transfer"
	"github.com/rescale/photoup/internal/util/buffers"
	"github.com/rescale/photoup/internal/util/filter"
	"github.com/rescale/photoup/internal/util/paths"
	"github.com/rescale/photoup/internal/util/sanitize"
	ustrings "github.com/rescale/photoup/internal/util/strings"
)

// ErrNoImages is returned when the arguments name no uploadable files.
var ErrNoImages = errors.New("no image files found")

func newUploadCmd() *cobra.Command {
	var (
		concurrency int
		retries     int
		yes         bool
		notifyFlag  bool
		dryRun      bool
		rename      bool
		include     string
		exclude     string
		pathInclude string
		hidden      bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file|directory>...",
		Short: "Encode and upload images to the store",
		Long: `Encode each file and upload it to the configured store, several at a time.

Directories are walked recursively and only image files (png, jpg, jpeg,
gif, bmp) are kept. Files named explicitly are always uploaded. Inside
directories, --include and --exclude filter by file name and --path-include
by the path below the directory; each takes a comma-separated glob list.
Hidden files and directories are skipped unless --hidden is set.

Two files that would be stored under the same name are reported before
the upload starts; --rename-duplicates stores them as name_<dir>.ext.

Failed uploads are never retried on their own. With --retry N, photoup asks
after each round whether to retry the failures, up to N rounds; --yes
retries without asking, waiting a short backoff between rounds.`,
		Example: `  photoup upload ~/Pictures/trip
  photoup upload -j 8 --retry 2 --yes beach.png dog.jpg
  photoup upload --exclude "*_thumb.*" --path-include "2024/**" ~/Pictures`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			ctx := GetContext()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Upload.Concurrency = concurrency
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if retries < 0 {
				return fmt.Errorf("--retry must not be negative")
			}

			opts := sourceOptions{
				Filter: filter.Config{
					Include:     filter.ParsePatternList(include),
					Exclude:     filter.ParsePatternList(exclude),
					PathInclude: filter.ParsePatternList(pathInclude),
				},
				IncludeHidden: hidden,
			}
			if err := opts.Filter.Validate(); err != nil {
				return err
			}

			sources, err := collectSources(args, opts, logger)
			if err != nil {
				return err
			}
			dups := storedNameClashes(sources, rename, logger)

			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), renderSources(sources))
				fmt.Fprintf(cmd.OutOrStdout(), "%s would be uploaded to the %s store with concurrency %d.\n",
					ustrings.Count(len(sources), "file"), cfg.BackendName(), transfer.ClampConcurrency(cfg.Upload.Concurrency))
				if dups > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s share a stored name; use --rename-duplicates to keep them apart.\n",
						ustrings.Count(dups, "file"))
				}
				return nil
			}

			s, err := backends.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create %s store: %w", cfg.BackendName(), err)
			}

			notifier := notify.NewNotifier(&notify.Config{
				Enabled:           cfg.Notify.Enabled || notifyFlag,
				ShowBatchComplete: cfg.Notify.OnComplete,
				ShowBatchFailed:   cfg.Notify.OnFailure,
			}, logger)

			u := newUploader(s, cfg, notifier, logger)
			defer u.close()
			u.retries = retries
			u.yes = yes
			u.prompt = newPrompter(os.Stdin, os.Stderr)

			u.ctrl.Select(sources)
			res, err := u.run(ctx)
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if res.Summary.Failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", res.Summary.Failed, res.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", constants.DefaultMaxConcurrent,
		fmt.Sprintf("Uploads in flight at once (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	cmd.Flags().IntVar(&retries, "retry", 0, "Offer to retry failed uploads up to N times")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Retry without asking")
	cmd.Flags().BoolVar(&notifyFlag, "notify", false, "Show a desktop notification when the batch finishes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be uploaded and exit")
	cmd.Flags().BoolVar(&rename, "rename-duplicates", false, "Give files that share a stored name distinct names")
	cmd.Flags().StringVar(&include, "include", "", "Only file names matching these globs (comma-separated)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Skip file names matching these globs (comma-separated)")
	cmd.Flags().StringVar(&pathInclude, "path-include", "", "Only paths below each directory matching these globs")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include hidden files and directories")

	return cmd
}

// uploader drives one controller through a first round and optional
// retry rounds, drawing each round with its own progress UI.
type uploader struct {
	ctrl     *transfer.Controller
	bus      *events.EventBus
	notifier *notify.Notifier
	logger   *logging.Logger
	prompt   *prompter

	retries int
	yes     bool

	newUI func(total int) *progress.UploadUI
	sleep func(ctx context.Context, d time.Duration) error

	// Set for the duration of a RetryFailed call; read by OnSuccess.
	retrying bool
}

func newUploader(s store.Store, cfg *config.Config, notifier *notify.Notifier, logger *logging.Logger) *uploader {
	u := &uploader{
		bus:      events.NewEventBus(constants.EventBusDefaultBuffer),
		notifier: notifier,
		logger:   logger,
		newUI:    progress.NewUploadUI,
		sleep:    sleepContext,
	}
	u.ctrl = transfer.NewController(transfer.Options{
		Store:       s,
		Encoder:     encode.NewEncoder(cfg.ChunkSize()),
		Concurrency: cfg.Upload.Concurrency,
		EventBus:    u.bus,
		Logger:      logger,
		OnSuccess: func(sum transfer.Summary) {
			u.notifier.BatchComplete(sum.Success, u.retrying)
		},
	})
	return u
}

func (u *uploader) close() {
	u.ctrl.Close()
	u.bus.Close()
}

// run submits the batch, then offers up to u.retries retry rounds while
// items remain failed.
func (u *uploader) run(ctx context.Context) (transfer.Result, error) {
	res, err := u.round(ctx, false, u.ctrl.Summary().Total)
	if err != nil {
		return res, err
	}

	auto := u.yes
	for round := 1; round <= u.retries && res.Summary.Failed > 0; round++ {
		if ctx.Err() != nil {
			break
		}

		if auto {
			delay := inthttp.CalculateBackoff(round, constants.RetryWaitMin, constants.RetryWaitMax)
			u.logger.Info().
				Int("round", round).
				Int("failed", res.Summary.Failed).
				Dur("delay", delay).
				Msg("Retrying failed uploads")
			if err := u.sleep(ctx, delay); err != nil {
				break
			}
		} else {
			action, err := u.prompt.promptRetry(res.Summary.Failed, round, u.retries, u.ctrl.Advisory())
			if err != nil {
				return res, fmt.Errorf("failed to read answer: %w", err)
			}
			if action == RetryStop {
				break
			}
			if action == RetryAll {
				auto = true
			}
		}

		res, err = u.round(ctx, true, res.Summary.Failed)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func (u *uploader) round(ctx context.Context, retry bool, total int) (transfer.Result, error) {
	ui := u.newUI(total)
	ch := u.bus.SubscribeAll()
	go ui.Consume(ch)

	prev := u.logger.Output()
	if ui.IsTerminal() {
		u.logger.SetOutput(ui.Writer())
	}

	var (
		res transfer.Result
		err error
	)
	u.retrying = retry
	if retry {
		res, err = u.ctrl.RetryFailed(ctx)
	} else {
		res, err = u.ctrl.Submit(ctx)
	}
	u.retrying = false

	ui.Finish()
	u.bus.UnsubscribeAll(ch)
	u.logger.SetOutput(prev)

	if n := u.bus.ResetDroppedEventCount(); n > 0 {
		u.logger.Warn().Int64("dropped", n).Msg("Progress display missed events")
	}
	u.logger.Debug().
		Int64("chunk_allocations", buffers.GetStats().ChunkAllocations).
		Msg("Encode buffer pool")

	if err != nil {
		return res, err
	}
	if res.HadFailure {
		u.notifier.BatchFailed(u.ctrl.Advisory())
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sourceOptions controls how directory arguments are expanded.
type sourceOptions struct {
	Filter        filter.Config
	IncludeHidden bool
}

// collectSources expands args into sources. Directories contribute their
// image files that pass the filter; explicit files are kept whatever their
// name. A path that cannot be read still becomes a source so that it shows
// up as a failed item instead of vanishing from the batch.
func collectSources(args []string, opts sourceOptions, logger *logging.Logger) ([]encode.Source, error) {
	var sources []encode.Source
	seen := make(map[string]bool)

	add := func(path string) {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if seen[key] {
			return
		}
		seen[key] = true

		src, err := encode.FileSource(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("File will fail to upload")
		}
		sources = append(sources, src)
	}

	walk := localfs.WalkOptions{
		IncludeHidden: opts.IncludeHidden,
		Keep: func(e localfs.FileEntry) bool {
			return encode.IsImageFile(e.Name) && opts.Filter.Match(e.RelPath)
		},
		OnError: func(path string, err error) {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
		},
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			add(arg)
			continue
		}

		err = localfs.WalkFiles(arg, walk, func(e localfs.FileEntry) error {
			add(e.Path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
	}

	if len(sources) == 0 {
		return nil, ErrNoImages
	}
	return sources, nil
}

// storedNameClashes finds sources that would be stored under the same
// name, where a later upload replaces an earlier one in object stores.
// With rename set the clashing sources are renamed apart. Returns the
// number of clashing sources found.
func storedNameClashes(sources []encode.Source, rename bool, logger *logging.Logger) int {
	entries := make([]paths.Entry, len(sources))
	for i, src := range sources {
		stored, err := sanitize.FileName(src.Name)
		if err != nil {
			// Rejected later as an invalid item; keyed apart from the rest.
			stored = src.Path
		}
		entries[i] = paths.Entry{Path: src.Path, StoredName: stored}
	}

	groups := paths.Collisions(entries)
	if len(groups) == 0 {
		return 0
	}

	clashing := 0
	for _, group := range groups {
		clashing += len(group)
		files := make([]string, len(group))
		for i, idx := range group {
			files[i] = sources[idx].Path
		}
		if !rename {
			logger.Warn().
				Str("stored_name", entries[group[0]].StoredName).
				Strs("files", files).
				Msg("Files share a stored name; the last upload wins")
		}
	}

	if rename {
		resolved, count := paths.ResolveCollisions(entries)
		for _, group := range groups {
			for _, idx := range group {
				logger.Info().
					Str("path", sources[idx].Path).
					Str("stored_name", resolved[idx].StoredName).
					Msg("Renamed duplicate")
				sources[idx].Name = resolved[idx].StoredName
			}
		}
		logger.Infof("Renamed %s to avoid stored-name clashes", ustrings.Count(count, "file"))
	}

	return clashing
}

func renderSources(sources []encode.Source) string {
	rows := make([][]string, 0, len(sources))
	for i, src := range sources {
		stored, err := sanitize.FileName(src.Name)
		if err != nil {
			stored = "(" + err.Error() + ")"
		}
		mime := encode.InferMimeType(src.Name)
		if mime == "" {
			mime = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			src.Path,
			stored,
			units.BytesSize(float64(src.Size)),
			mime,
		})
	}
	return renderTable(
		[]string{"#", "File", "Stored As", "Size", "Type"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
