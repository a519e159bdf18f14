//go:build integration

package redis_test

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	rstore "github.com/KretovDmitry/nairabulk-orders/internal/storage/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	s, err := rstore.New(client, "it-"+time.Now().Format("150405.000000"))
	require.NoError(t, err)

	_, err = s.Get(ctx, "orders/NB-1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.Put(ctx, "orders/NB-1", []byte("1")))
	require.NoError(t, s.Put(ctx, "orders/NB-2", []byte("2")))

	_, err = s.Upload(ctx, "orders/NB-1-screenshot", &storage.Attachment{
		Name: "cart.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n"),
	})
	require.NoError(t, err)

	keys, err := s.List(ctx, "orders/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"orders/NB-1", "orders/NB-2"}, keys, "attachments are not records")

	a, err := s.Download(ctx, "orders/NB-1-screenshot")
	require.NoError(t, err)
	assert.Equal(t, "cart.png", a.Name)

	_, err = s.UploadNew(ctx, "orders/NB-1-screenshot", &storage.Attachment{Name: "other.png", ContentType: "image/png"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	_, err = s.UploadNew(ctx, "orders/NB-3-screenshot", &storage.Attachment{Name: "new.png", ContentType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "orders/NB-3-screenshot"))

	for _, k := range []string{"orders/NB-1", "orders/NB-2", "orders/NB-1-screenshot"} {
		require.NoError(t, s.Delete(ctx, k))
	}
	_, err = s.Download(ctx, "orders/NB-1-screenshot")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
