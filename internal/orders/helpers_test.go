package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/events"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/status"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/storagetest"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	"github.com/stretchr/testify/require"
)

// PNG and JPEG signatures are enough for content sniffing.
var (
	pngData  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), make([]byte, 32)...)
	jpegData = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), make([]byte, 32)...)
)

func png(name string) *storage.Attachment {
	return &storage.Attachment{Name: name, ContentType: "image/png", Data: append([]byte(nil), pngData...)}
}

func jpeg(name string) *storage.Attachment {
	return &storage.Attachment{Name: name, ContentType: "image/jpeg", Data: append([]byte(nil), jpegData...)}
}

func validDetails() *order.Details {
	return &order.Details{
		FullName: "Ada Obi",
		Phone:    "+2348012345678",
		Email:    "ada@example.com",
		Address:  "12 Marina Rd, Lagos",
		Store:    "temu",
		Notes:    "gift wrap",
	}
}

func fixedClock(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis) }
}

type authorizer struct {
	allow bool
}

func (a authorizer) Authorize(context.Context) error {
	if !a.allow {
		return errs.ErrUnauthorized
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	backend   *storagetest.Store
	repo      *Repo
	status    *status.Switch
	publisher *recordingPublisher
	service   *Service
}

func newFixture(t *testing.T, allowAdmin bool) *fixture {
	t.Helper()

	backend := storagetest.New()
	log := logger.NewForTest()

	repo, err := NewRepository(backend, order.NewIDGenerator(fixedClock(1700000000000)), log)
	require.NoError(t, err)

	statusStore, err := status.NewStore(backend, log)
	require.NoError(t, err)
	sw := status.NewSwitch(context.Background(), statusStore)

	publisher := &recordingPublisher{}

	cfg := &config.Config{Attachments: config.Attachments{MaxSizeBytes: 1024}}

	service, err := NewService(repo, sw, authorizer{allow: allowAdmin}, publisher, log, cfg)
	require.NoError(t, err)

	return &fixture{
		backend:   backend,
		repo:      repo,
		status:    sw,
		publisher: publisher,
		service:   service,
	}
}
