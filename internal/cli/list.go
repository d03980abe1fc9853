package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/store/httpstore"
	ustrings "github.com/rescale/photoup/internal/util/strings"
	"github.com/rescale/photoup/internal/util/tags"
)

// ErrReadsNeedHTTP is returned by list and search for object-store backends,
// which keep no photo index to query.
var ErrReadsNeedHTTP = errors.New("list and search need the http store backend")

func newListCmd() *cobra.Command {
	var (
		tagFlags []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos in the store",
		Long: `List photos stored by the http backend, newest first as the store returns them.

--tag may be repeated or comma-separated; a photo matches when it carries
any of the given tags.`,
		Example: `  photoup list
  photoup list --tag beach,sunset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newReadClient()
			if err != nil {
				return err
			}

			photos, err := client.List(GetContext(), tags.Query(tagFlags))
			if err != nil {
				return fmt.Errorf("failed to list photos: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), models.PhotosResponse{Photos: photos})
			}
			printPhotos(cmd.OutOrStdout(), photos)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tagFlags, "tag", "t", nil, "Only photos with these tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the store's JSON")

	return cmd
}

func newSearchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search photos by description",
		Long: `Ask the store to turn a free-text description into tags and list the
photos that match them.`,
		Example: `  photoup search dogs on the beach`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("search query cannot be empty")
			}

			client, err := newReadClient()
			if err != nil {
				return err
			}

			resp, err := client.Search(GetContext(), query)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			if len(resp.Tags) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Tags: %s\n", strings.Join(resp.Tags, ", "))
			}
			printPhotos(cmd.OutOrStdout(), resp.Photos)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the store's JSON")

	return cmd
}

func newReadClient() (*httpstore.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.BackendName() != config.BackendHTTP {
		return nil, fmt.Errorf("%w (configured: %s)", ErrReadsNeedHTTP, cfg.BackendName())
	}
	return httpstore.New(cfg, nil, GetLogger())
}

func printPhotos(w io.Writer, photos []models.Photo) {
	if len(photos) == 0 {
		fmt.Fprintln(w, "No photos found.")
		return
	}

	rows := make([][]string, 0, len(photos))
	for _, p := range photos {
		created := p.CreatedAt
		if t, ok := p.Created(); ok {
			created = t.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			strconv.FormatInt(p.PhotoID, 10),
			p.FileName,
			strings.Join(p.Tags, ", "),
			created,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "File", "Tags", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintln(w, ustrings.Count(len(photos), "photo"))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
