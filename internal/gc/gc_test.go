package gc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"testing"
	"time"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/testutil"
)

type fixture struct {
	uploads *storage.FS
	store   content.Store
	inv     *inventory.DB
	c       *Collector
}

func derived(id string) string { return path.Join("_derived", id) }

func newFixture(t *testing.T, snap *content.Snapshot, protect []string, files ...string) *fixture {
	t.Helper()
	_, uploads := testutil.TestRoot(t)
	_, contentFS := testutil.TestRoot(t)
	store := content.NewFileStore(contentFS)
	inv := testutil.TestDB(t)
	ctx := context.Background()
	for _, cl := range content.Collections {
		if err := store.Save(ctx, cl, snap); err != nil {
			t.Fatal(err)
		}
	}
	rules := pathrules.Default()
	for i, f := range files {
		if err := uploads.Write(f, []byte("0123456789")); err != nil {
			t.Fatal(err)
		}
		e := inventory.NewEntry(rules, f, []byte("0123456789"), time.Now())
		e.ID = "id" + string(rune('a'+i))
		if err := inv.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
		_ = uploads.Write(path.Join(derived(e.ID), "v1", "thumb.avif"), []byte("abc"))
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(rules, uploads, store, inv, derived, protect, logger)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{uploads: uploads, store: store, inv: inv, c: c}
}

func TestPreviewNeverFlagsReferenced(t *testing.T) {
	snap := &content.Snapshot{
		Posts: []models.Post{{ID: "p", Body: `text <img src="https://site.example/uploads/posts/in-body.png">`}},
		Pages: []models.Page{{Path: "about.md", Content: "![](/uploads/pages/about.png)"}},
	}
	f := newFixture(t, snap, nil, "posts/in-body.png", "pages/about.png", "orphan.png")
	rep, err := f.c.Preview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Candidates) != 1 || rep.Candidates[0].URL != "/uploads/orphan.png" {
		t.Fatalf("candidates = %+v", rep.Candidates)
	}
	if rep.CandidateTotals.OriginalBytes != 10 || rep.CandidateTotals.DerivativeBytes != 3 {
		t.Errorf("totals = %+v", rep.CandidateTotals)
	}
	if !f.uploads.Exists("orphan.png") || len(rep.Deleted) != 0 {
		t.Error("preview deleted something")
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t, &content.Snapshot{}, []string{"keep/**"}, "a.png", "keep/b.png")
	rep, err := f.c.Apply(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Protected != 1 || len(rep.Deleted) != 1 || rep.DeletedTotals.Count != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if f.uploads.Exists("a.png") || f.uploads.Exists("_derived/ida/v1/thumb.avif") {
		t.Error("file or renditions not deleted")
	}
	if !f.uploads.Exists("keep/b.png") {
		t.Error("protected file deleted")
	}
	all, _ := f.inv.All(context.Background())
	if len(all) != 1 || all[0].URL != "/uploads/keep/b.png" {
		t.Errorf("inventory = %+v", all)
	}
}

func TestApplyMissingFileStillCollected(t *testing.T) {
	f := newFixture(t, &content.Snapshot{}, nil, "gone.png")
	_ = f.uploads.Delete("gone.png")
	rep, err := f.c.Apply(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Deleted) != 1 || len(rep.Failed) != 0 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Deleted[0].OriginalBytes != 10 {
		t.Errorf("original bytes fall back to the entry size, got %d", rep.Deleted[0].OriginalBytes)
	}
}

func TestInvalidProtectPattern(t *testing.T) {
	_, err := New(pathrules.Default(), nil, nil, nil, derived, []string{"[unclosed"}, slog.Default())
	if err == nil {
		t.Error("expected invalid pattern error")
	}
}

// failingFiles refuses to remove the listed paths.
type failingFiles struct {
	storage.Provider
	deny map[string]bool
}

func (f failingFiles) Delete(p string) error {
	if f.deny[p] {
		return errors.New("permission denied")
	}
	return f.Provider.Delete(p)
}

func (f failingFiles) RemoveAll(p string) error {
	if f.deny[p] {
		return errors.New("permission denied")
	}
	return f.Provider.RemoveAll(p)
}

func TestApplyKeepsEntryWhenDeletionFails(t *testing.T) {
	f := newFixture(t, &content.Snapshot{}, nil, "a.png", "b.png", "c.png")
	files := failingFiles{Provider: f.uploads, deny: map[string]bool{
		"a.png":        true,
		derived("idb"): true,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(pathrules.Default(), files, f.store, f.inv, derived, nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rep, err := c.Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Candidates) != 3 || len(rep.Deleted) != 1 || rep.Deleted[0].ID != "idc" {
		t.Fatalf("report = %+v", rep)
	}
	failed := map[string]bool{}
	for _, fl := range rep.Failed {
		failed[fl.ID] = fl.Error != ""
	}
	if len(failed) != 2 || !failed["ida"] || !failed["idb"] {
		t.Errorf("failed = %+v", rep.Failed)
	}
	for _, id := range []string{"ida", "idb"} {
		if _, err := f.inv.Get(ctx, id); err != nil {
			t.Errorf("entry %s was dropped: %v", id, err)
		}
	}
	if _, err := f.inv.Get(ctx, "idc"); err == nil {
		t.Error("collected entry still present")
	}
	if rep.DeletedTotals.Count != 1 || rep.DeletedTotals.OriginalBytes != 10 || rep.DeletedTotals.DerivativeBytes != 3 {
		t.Errorf("deleted totals = %+v", rep.DeletedTotals)
	}
	if rep.CandidateTotals.Count != 3 {
		t.Errorf("candidate totals = %+v", rep.CandidateTotals)
	}
}
