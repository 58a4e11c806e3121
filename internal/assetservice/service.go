// Package assetservice coordinates the asset lifecycle components. Relocation,
// garbage collection and reconciliation hold an exclusive lock; imports,
// derivative runs and read-only reports share it.
package assetservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/audit"
	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/derivative"
	"github.com/starford/mediakeep/internal/gc"
	"github.com/starford/mediakeep/internal/importer"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/relocate"
	"github.com/starford/mediakeep/internal/sse"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/usage"
)

// Notifier receives lifecycle events. *sse.Broker implements it.
type Notifier interface {
	Publish(event sse.Event)
	PublishInventoryUpdated(backfilled int)
}

type nopNotifier struct{}

func (nopNotifier) Publish(sse.Event)           {}
func (nopNotifier) PublishInventoryUpdated(int) {}

// Components are the collaborators a Service drives.
type Components struct {
	Rules     *pathrules.Rules
	Files     storage.Provider
	Content   content.Store
	Inventory inventory.Store
	Importer  *importer.Importer
	Generator *derivative.Generator
	Planner   *relocate.Planner
	Executor  *relocate.Executor
	Auditor   *audit.Auditor
	Collector *gc.Collector
}

// Service is the single entry point used by the HTTP, MCP and CLI surfaces.
type Service struct {
	Components
	events Notifier
	logger *slog.Logger

	mu sync.RWMutex
}

// New creates a service. A nil notifier discards events.
func New(c Components, events Notifier, logger *slog.Logger) *Service {
	if events == nil {
		events = nopNotifier{}
	}
	return &Service{Components: c, events: events, logger: logger}
}

// List returns inventory entries matching q (all entries when q is empty).
func (s *Service) List(ctx context.Context, q string, limit, offset int) ([]models.InventoryEntry, int, error) {
	items, total, err := s.Inventory.Search(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []models.InventoryEntry{}
	}
	return items, total, nil
}

// Get returns one entry by id.
func (s *Service) Get(ctx context.Context, id string) (*models.InventoryEntry, error) {
	return s.Inventory.Get(ctx, id)
}

// Import fetches one remote image.
func (s *Service) Import(ctx context.Context, remoteURL string, opts importer.Options) (*importer.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.Importer.Import(ctx, remoteURL, opts)
	if err != nil {
		return nil, err
	}
	s.publishImported(res)
	return res, nil
}

// ImportMany fetches a batch of remote images with bounded concurrency.
func (s *Service) ImportMany(ctx context.Context, reqs []importer.Request) *importer.BatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.Importer.ImportMany(ctx, reqs)
	for _, o := range out.Succeeded {
		s.publishImported(o.Result)
	}
	return out
}

func (s *Service) publishImported(res *importer.Result) {
	s.events.Publish(sse.Event{Type: sse.AssetImported, Data: map[string]any{
		"id":     res.Entry.ID,
		"url":    res.Entry.URL,
		"reused": res.Reused,
	}})
}

// Derive regenerates every preset for the asset.
func (s *Service) Derive(ctx context.Context, id string) (*models.InventoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.Inventory.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.derive(ctx, e)
}

// SetFocalPoint stores fp for preset (the shared focal point when preset is
// empty) and regenerates derivatives so they reflect it.
func (s *Service) SetFocalPoint(ctx context.Context, id, preset string, fp models.FocalPoint) (*models.InventoryEntry, error) {
	if !fp.Valid() {
		return nil, fmt.Errorf("%w: focal point must lie in [0,1]", apperr.ErrInvalidInput)
	}
	if preset != "" && !s.Generator.HasPreset(preset) {
		return nil, fmt.Errorf("%w: unknown preset %q", apperr.ErrInvalidInput, preset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.Inventory.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if preset == "" {
		e.FocalPoint = &fp
	} else {
		if e.FocalPoints == nil {
			e.FocalPoints = make(map[string]models.FocalPoint)
		}
		e.FocalPoints[preset] = fp
	}
	if err := s.Inventory.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return s.derive(ctx, e)
}

func (s *Service) derive(ctx context.Context, e *models.InventoryEntry) (*models.InventoryEntry, error) {
	out, err := s.Generator.Generate(ctx, e)
	if err != nil {
		if errors.Is(err, derivative.ErrNotRaster) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		return nil, err
	}
	out.Apply(e)
	if err := s.Inventory.Upsert(ctx, e); err != nil {
		return nil, err
	}
	presets := make([]string, 0, len(out.Variants))
	for name := range out.Variants {
		presets = append(presets, name)
	}
	sort.Strings(presets)
	s.events.Publish(sse.Event{Type: sse.AssetDerived, Data: map[string]any{
		"id":      e.ID,
		"version": out.Version,
		"presets": presets,
	}})
	return e, nil
}

// PlanRelocation computes a relocation plan without touching anything.
func (s *Service) PlanRelocation(ctx context.Context) (*relocate.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan(ctx)
}

func (s *Service) plan(ctx context.Context) (*relocate.Plan, error) {
	snap, err := s.Content.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Planner.Plan(usage.Scan(s.Rules, snap)), nil
}

// ApplyRelocation plans against current content and applies the plan.
func (s *Service) ApplyRelocation(ctx context.Context) (*relocate.Plan, *relocate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.plan(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Executor.Apply(ctx, plan)
	if err != nil {
		return plan, res, err
	}
	s.logger.Info("relocate: applied",
		slog.Int("moved", len(res.Moved)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("backfilled", res.Backfilled))
	s.events.Publish(sse.Event{Type: sse.AssetsRelocated, Data: map[string]int{
		"moved":  len(res.Moved),
		"failed": len(res.Failed),
	}})
	return plan, res, nil
}

// Audit runs the read-only integrity checks.
func (s *Service) Audit(ctx context.Context) (*audit.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Auditor.Run(ctx)
}

// CollectGarbage previews or, when apply is set, removes unreferenced assets.
func (s *Service) CollectGarbage(ctx context.Context, apply bool) (*gc.Report, error) {
	if !apply {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.Collector.Preview(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rep, err := s.Collector.Apply(ctx)
	if err != nil {
		return nil, err
	}
	s.events.Publish(sse.Event{Type: sse.AssetsCollected, Data: map[string]any{
		"deleted": rep.DeletedTotals.Count,
		"failed":  len(rep.Failed),
		"bytes":   rep.DeletedTotals.OriginalBytes + rep.DeletedTotals.DerivativeBytes,
	}})
	return rep, nil
}

// Reconcile scans content and creates inventory entries for referenced files
// the inventory does not know yet.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Content.Load(ctx)
	if err != nil {
		return 0, err
	}
	urls := usage.LiveSet(s.Rules, snap).ToSlice()
	sort.Strings(urls)
	n, err := inventory.Backfill(ctx, s.Inventory, s.Files, s.Rules, urls, s.logger)
	if err != nil {
		return n, err
	}
	s.logger.Info("reconcile: done", slog.Int("referenced", len(urls)), slog.Int("backfilled", n))
	s.events.PublishInventoryUpdated(n)
	return n, nil
}
