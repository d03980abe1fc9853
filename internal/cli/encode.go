package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/encode"
	"github.com/rescale/photoup/internal/progress"
)

func newEncodeCmd() *cobra.Command {
	var (
		output    string
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "encode <file>",
		Short: "Print the base64 payload a file would be uploaded as",
		Long: `Encode one file exactly as 'photoup upload' would and write the standard
base64 text to stdout or --output. The detected content type and sizes are
reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunkSize > constants.MaxEncodeChunkSizeKB {
				return config.ErrChunkSizeTooLarge
			}
			src, err := encode.FileSource(args[0])
			if err != nil {
				return err
			}

			var reporter progress.Reporter = progress.NewNoOpProgress()
			if term.IsTerminal(int(os.Stderr.Fd())) {
				reporter = progress.NewCLIProgress()
			}

			payload, err := runEncode(GetContext(), src, encode.NewEncoder(chunkSize*1024), reporter)
			if err != nil {
				return err
			}

			if err := writePayload(output, cmd.OutOrStdout(), payload.Base64); err != nil {
				return err
			}

			contentType := payload.ContentType
			if contentType == "" {
				contentType = "(left to the store)"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s -> %d base64 chars, type %s\n",
				src.Name, units.BytesSize(float64(payload.Size)), len(payload.Base64), contentType)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the payload to a file instead of stdout")
	cmd.Flags().IntVar(&chunkSize, "chunk-size-kb", 0, "Read chunk size in KiB (default 192)")

	return cmd
}

func runEncode(ctx context.Context, src encode.Source, enc *encode.Encoder, reporter progress.Reporter) (*encode.Payload, error) {
	reporter.Start(src.Size, "encoding "+src.Name)
	payload, err := enc.Encode(ctx, src, progress.Func(reporter))
	if err != nil {
		reporter.Error(err)
		return nil, err
	}
	reporter.Finish()
	return payload, nil
}

// writePayload writes the base64 text to stdout (newline-terminated) or to
// path. A failed close on the file is returned since buffered data may be lost.
func writePayload(path string, stdout io.Writer, text string) error {
	if path == "" || path == "-" {
		if _, err := fmt.Fprintln(stdout, text); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.WriteString(f, text); err != nil {
		f.Close()
		return fmt.Errorf("failed to write payload: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}
