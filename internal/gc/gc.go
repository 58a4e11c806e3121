// Package gc finds inventory entries that nothing references and removes
// them together with their renditions.
package gc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/usage"
)

// Candidate is an unreferenced inventory entry.
type Candidate struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Path            string `json:"path"`
	OriginalBytes   int64  `json:"originalBytes"`
	DerivativeBytes int64  `json:"derivativeBytes"`
}

// Totals aggregates candidate sizes.
type Totals struct {
	Count           int   `json:"count"`
	OriginalBytes   int64 `json:"originalBytes"`
	DerivativeBytes int64 `json:"derivativeBytes"`
}

func (t *Totals) add(c Candidate) {
	t.Count++
	t.OriginalBytes += c.OriginalBytes
	t.DerivativeBytes += c.DerivativeBytes
}

// Failure is a candidate that could not be removed; its entry is kept.
type Failure struct {
	Candidate
	Error string `json:"error"`
}

// Report describes one collection pass.
type Report struct {
	Applied         bool        `json:"applied"`
	Candidates      []Candidate `json:"candidates"`
	CandidateTotals Totals      `json:"candidateTotals"`
	Deleted         []Candidate `json:"deleted"`
	DeletedTotals   Totals      `json:"deletedTotals"`
	Failed          []Failure   `json:"failed"`
	Protected       int         `json:"protected"`
}

// Collector runs garbage collection.
type Collector struct {
	rules      *pathrules.Rules
	files      storage.Provider
	store      content.Store
	inv        inventory.Store
	derivedDir func(id string) string
	protect    []string
	logger     *slog.Logger
}

// New creates a collector. derivedDir maps an asset id to its renditions
// folder; protect holds doublestar patterns of paths never collected.
func New(rules *pathrules.Rules, files storage.Provider, store content.Store, inv inventory.Store,
	derivedDir func(id string) string, protect []string, logger *slog.Logger) (*Collector, error) {
	for _, p := range protect {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("gc: invalid protect pattern %q", p)
		}
	}
	return &Collector{rules: rules, files: files, store: store, inv: inv,
		derivedDir: derivedDir, protect: protect, logger: logger}, nil
}

// Preview lists deletion candidates without touching anything.
func (c *Collector) Preview(ctx context.Context) (*Report, error) { return c.run(ctx, false) }

// Apply deletes every candidate it can.
func (c *Collector) Apply(ctx context.Context) (*Report, error) { return c.run(ctx, true) }

func (c *Collector) run(ctx context.Context, apply bool) (*Report, error) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("gc: load content: %w", err)
	}
	live := usage.LiveSet(c.rules, snap)
	entries, err := c.inv.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("gc: list inventory: %w", err)
	}

	rep := &Report{Applied: apply, Candidates: []Candidate{}, Deleted: []Candidate{}, Failed: []Failure{}}
	for i := range entries {
		e := &entries[i]
		if live.Contains(e.URL) {
			continue
		}
		rel, ok := c.rules.RelativePath(e.URL)
		if !ok {
			continue
		}
		if c.protected(rel) {
			rep.Protected++
			continue
		}
		cand := c.measure(e, rel)
		rep.Candidates = append(rep.Candidates, cand)
		rep.CandidateTotals.add(cand)
	}

	if apply {
		for _, cand := range rep.Candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := c.remove(ctx, cand); err != nil {
				c.logger.Warn("gc: delete failed", slog.String("url", cand.URL), slog.String("error", err.Error()))
				rep.Failed = append(rep.Failed, Failure{Candidate: cand, Error: err.Error()})
				continue
			}
			rep.Deleted = append(rep.Deleted, cand)
			rep.DeletedTotals.add(cand)
		}
	}

	c.logger.Info("gc: done",
		slog.Bool("applied", apply),
		slog.Int("candidates", len(rep.Candidates)),
		slog.Int("deleted", len(rep.Deleted)),
		slog.Int("failed", len(rep.Failed)))
	return rep, nil
}

func (c *Collector) protected(rel string) bool {
	for _, p := range c.protect {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (c *Collector) measure(e *models.InventoryEntry, rel string) Candidate {
	cand := Candidate{ID: e.ID, URL: e.URL, Path: rel, OriginalBytes: e.Size, DerivativeBytes: e.VariantBytes}
	if info, err := c.files.Stat(rel); err == nil {
		cand.OriginalBytes = info.Size()
	}
	if metas, err := c.files.List(c.derivedDir(e.ID)); err == nil && len(metas) > 0 {
		var n int64
		for _, m := range metas {
			n += m.Size
		}
		cand.DerivativeBytes = n
	}
	return cand
}

// remove deletes the file and renditions, then the entry. An already
// missing file is not an error.
func (c *Collector) remove(ctx context.Context, cand Candidate) error {
	if err := c.files.Delete(cand.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := c.files.RemoveAll(c.derivedDir(cand.ID)); err != nil {
		return err
	}
	return c.inv.Delete(ctx, cand.ID)
}
