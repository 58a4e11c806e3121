// Package servicetest builds a fully wired asset service for handler tests.
package servicetest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"testing"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/derivative"
	"github.com/starford/mediakeep/internal/importer"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/sse"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/testutil"
)

// PublicResolver resolves every host to a public documentation address.
type PublicResolver struct{}

// LookupNetIP implements importer.Resolver.
func (PublicResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

// Remote serves fixed bodies keyed by URL and 404 for everything else.
type Remote map[string][]byte

// Do implements importer.Doer.
func (r Remote) Do(req *http.Request) (*http.Response, error) {
	body, ok := r[req.URL.String()]
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode:    status,
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// Recorder collects published events.
type Recorder struct {
	mu        sync.Mutex
	events    []sse.Event
	inventory []int
}

// Publish implements assetservice.Notifier.
func (r *Recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// PublishInventoryUpdated implements assetservice.Notifier.
func (r *Recorder) PublishInventoryUpdated(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventory = append(r.inventory, n)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// InventoryUpdates returns the recorded backfill counts.
func (r *Recorder) InventoryUpdates() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.inventory...)
}

// Env is a fully wired asset service over temporary directories.
type Env struct {
	Rules     *pathrules.Rules
	Uploads   *storage.FS
	Content   *content.FileStore
	Inventory *inventory.DB
	Events    *Recorder
	Service   *assetservice.Service
}

// TestPresets are small enough to render quickly.
var TestPresets = []derivative.Preset{
	{Name: "small", Width: 8, Height: 8},
	{Name: "wide", Width: 16, Height: 9},
}

// NewEnv saves snap, wires a service that fetches from remote, and returns it.
func NewEnv(t *testing.T, snap *content.Snapshot, remote Remote) *Env {
	t.Helper()
	_, uploads := testutil.TestRoot(t)
	_, contentFS := testutil.TestRoot(t)
	env := &Env{
		Rules:     pathrules.Default(),
		Uploads:   uploads,
		Content:   content.NewFileStore(contentFS),
		Inventory: testutil.TestDB(t),
		Events:    &Recorder{},
	}
	if snap == nil {
		snap = &content.Snapshot{}
	}
	for _, c := range content.Collections {
		if err := env.Content.Save(context.Background(), c, snap); err != nil {
			t.Fatal(err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := assetservice.Assemble(assetservice.Settings{
		Rules:           env.Rules,
		Files:           uploads,
		Content:         env.Content,
		Inventory:       env.Inventory,
		Importer:        importer.DefaultConfig(),
		ImporterOptions: []importer.Option{importer.WithDoer(remote), importer.WithResolver(PublicResolver{})},
		Presets:         TestPresets,
		Encoders: derivative.Encoders{
			Primary:        derivative.JPEG{Quality: 80},
			Secondary:      derivative.PNG{},
			FallbackOpaque: derivative.JPEG{Quality: 80},
			FallbackAlpha:  derivative.PNG{},
		},
	}, env.Events, logger)
	if err != nil {
		t.Fatal(err)
	}
	env.Service = svc
	return env
}
