// Package backends builds the store.Store selected in configuration.
package backends

import (
	"context"
	"fmt"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/store"
	"github.com/rescale/photoup/internal/store/azurestore"
	"github.com/rescale/photoup/internal/store/httpstore"
	"github.com/rescale/photoup/internal/store/s3store"
)

// New creates the backend named by cfg.Store.Backend.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (store.Store, error) {
	switch cfg.BackendName() {
	case config.BackendHTTP:
		return httpstore.New(cfg, nil, logger)
	case config.BackendS3:
		return s3store.New(ctx, cfg, logger)
	case config.BackendAzure:
		return azurestore.New(cfg, nil, logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Store.Backend)
	}
}

// Compile-time interface verification
var (
	_ store.Store = (*httpstore.Client)(nil)
	_ store.Store = (*s3store.Client)(nil)
	_ store.Store = (*azurestore.Client)(nil)
)
