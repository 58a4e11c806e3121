package relocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/usage"
)

// Move is one realized relocation.
type Move struct {
	OldURL  string `json:"oldUrl"`
	NewURL  string `json:"newUrl"`
	Resumed bool   `json:"resumed,omitempty"`
}

// Failure is a plan entry that could not be moved.
type Failure struct {
	OldURL string `json:"oldUrl"`
	NewURL string `json:"newUrl"`
	Error  string `json:"error"`
}

// Result summarizes one Apply call.
type Result struct {
	Moved        []Move                     `json:"moved"`
	Failed       []Failure                  `json:"failed"`
	Replacements map[content.Collection]int `json:"replacements"`
	Backfilled   int                        `json:"backfilled"`
}

// Executor applies relocation plans.
type Executor struct {
	rules  *pathrules.Rules
	files  storage.Provider
	store  content.Store
	inv    inventory.Store
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(rules *pathrules.Rules, files storage.Provider, store content.Store, inv inventory.Store, logger *slog.Logger) *Executor {
	return &Executor{rules: rules, files: files, store: store, inv: inv, logger: logger}
}

// Apply moves every plan entry it can, rewrites references for the moves
// that happened (including moves left over from an interrupted earlier
// run), then brings the inventory up to date. Per-entry failures are
// reported in the result; the returned error is reserved for failures that
// stop the whole pass, such as being unable to load or save content.
func (x *Executor) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	res := &Result{Moved: []Move{}, Failed: []Failure{}, Replacements: map[content.Collection]int{}}
	mapping := make(map[string]string)

	resumed, err := x.resume(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range resumed {
		mapping[m.OldURL] = m.NewURL
		res.Moved = append(res.Moved, m)
	}

	for _, e := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, done := mapping[e.OldURL]; done {
			continue
		}
		if err := x.moveOne(ctx, e); err != nil {
			x.logger.Warn("relocate: move failed",
				slog.String("url", e.OldURL),
				slog.String("target", e.NewURL),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, Failure{OldURL: e.OldURL, NewURL: e.NewURL, Error: err.Error()})
			continue
		}
		mapping[e.OldURL] = e.NewURL
		res.Moved = append(res.Moved, Move{OldURL: e.OldURL, NewURL: e.NewURL})
	}

	snap, err := x.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("relocate: load content: %w", err)
	}
	if len(mapping) > 0 {
		res.Replacements = Rewrite(x.rules, snap, mapping)
		for _, c := range content.Collections {
			if res.Replacements[c] == 0 {
				continue
			}
			if err := x.store.Save(ctx, c, snap); err != nil {
				return nil, fmt.Errorf("relocate: save %s: %w", c, err)
			}
		}
	}

	olds := make([]string, 0, len(mapping))
	for o := range mapping {
		olds = append(olds, o)
	}
	sort.Strings(olds)
	for _, o := range olds {
		x.renameEntry(ctx, o, mapping[o])
		if err := x.inv.JournalDelete(ctx, o); err != nil {
			x.logger.Warn("relocate: journal cleanup failed", slog.String("url", o), slog.String("error", err.Error()))
		}
	}

	live := usage.LiveSet(x.rules, snap).ToSlice()
	sort.Strings(live)
	res.Backfilled, err = inventory.Backfill(ctx, x.inv, x.files, x.rules, live, x.logger)
	if err != nil {
		return nil, fmt.Errorf("relocate: backfill: %w", err)
	}

	x.logger.Info("relocate: applied",
		slog.Int("moved", len(res.Moved)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("backfilled", res.Backfilled))
	return res, nil
}

// resume folds journal rows from an interrupted run back into the mapping.
// A pending row whose target exists and whose source is gone was moved
// before the crash.
func (x *Executor) resume(ctx context.Context) ([]Move, error) {
	rows, err := x.inv.JournalList(ctx)
	if err != nil {
		return nil, err
	}
	var out []Move
	for _, r := range rows {
		switch r.State {
		case inventory.JournalMoved:
			out = append(out, Move{OldURL: r.OldURL, NewURL: r.NewURL, Resumed: true})
		case inventory.JournalPending:
			src, ok1 := x.rules.RelativePath(r.OldURL)
			dst, ok2 := x.rules.RelativePath(r.NewURL)
			if ok1 && ok2 && !x.files.Exists(src) && x.files.Exists(dst) {
				if err := x.inv.JournalMark(ctx, r.OldURL, inventory.JournalMoved); err != nil {
					return nil, err
				}
				out = append(out, Move{OldURL: r.OldURL, NewURL: r.NewURL, Resumed: true})
				continue
			}
			if err := x.inv.JournalDelete(ctx, r.OldURL); err != nil {
				return nil, err
			}
		}
	}
	if len(out) > 0 {
		x.logger.Info("relocate: resuming interrupted moves", slog.Int("count", len(out)))
	}
	return out, nil
}

func (x *Executor) moveOne(ctx context.Context, e Entry) error {
	if err := x.inv.JournalRecord(ctx, e.OldURL, e.NewURL); err != nil {
		return err
	}
	err := x.files.Move(e.SourcePath, e.TargetPath)
	if err != nil && !x.files.Exists(e.SourcePath) && x.files.Exists(e.TargetPath) {
		// Another worker finished the same move.
		err = nil
	}
	if err != nil {
		_ = x.inv.JournalDelete(ctx, e.OldURL)
		return err
	}
	return x.inv.JournalMark(ctx, e.OldURL, inventory.JournalMoved)
}

func (x *Executor) renameEntry(ctx context.Context, oldURL, newURL string) {
	rel, ok := x.rules.RelativePath(newURL)
	if !ok {
		return
	}
	err := x.inv.Rename(ctx, oldURL, newURL, path.Base(rel), folderOf(rel), pathrules.Area(rel))
	switch {
	case err == nil, errors.Is(err, apperr.ErrNotFound):
	case errors.Is(err, apperr.ErrConflict):
		// The target already has an entry; drop the stale one.
		if old, gerr := x.inv.GetByURL(ctx, oldURL); gerr == nil {
			_ = x.inv.Delete(ctx, old.ID)
		}
	default:
		x.logger.Warn("relocate: inventory rename failed", slog.String("url", oldURL), slog.String("error", err.Error()))
	}
}
