package gcs

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"google.golang.org/api/option"
)

// Open creates a Cloud Storage client from configuration.
// The caller owns the returned client.
func Open(ctx context.Context, cfg config.GCS) (*Store, *gcs.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	store, err := New(client, cfg.Bucket, cfg.Prefix, cfg.PublicBaseURL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return store, client, nil
}
