package audit

import (
	"context"
	"testing"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/relocate"
	"github.com/starford/mediakeep/internal/testutil"
)

func TestRun(t *testing.T) {
	_, uploads := testutil.TestRoot(t)
	_, contentFS := testutil.TestRoot(t)
	store := content.NewFileStore(contentFS)
	ctx := context.Background()

	snap := &content.Snapshot{
		Posts: []models.Post{
			{ID: "p1", Cover: "/uploads/gone.png", Body: "/uploads/gone.png /uploads/a.png"},
			{ID: "p2", Cover: "/uploads/posts/ok.png"},
		},
		Site: models.SiteConfig{Logo: "/uploads/shared/missing-logo.svg", Favicon: "/uploads/other/f.ico"},
	}
	for _, c := range content.Collections {
		if err := store.Save(ctx, c, snap); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"a.png", "posts/ok.png", "other/f.ico"} {
		if err := uploads.Write(f, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	rules := pathrules.Default()
	a := New(rules, uploads, store, relocate.NewPlanner(rules, uploads, 0), 1)
	rep, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Counts[MissingFile] != 2 || rep.Critical != 2 {
		t.Errorf("missing = %d critical = %d, want 2/2", rep.Counts[MissingFile], rep.Critical)
	}
	if rep.Counts[NeedsRelocation] != 1 {
		t.Errorf("needs relocation = %d, want 1", rep.Counts[NeedsRelocation])
	}
	if rep.Counts[UnmanagedRoot] != 1 {
		t.Errorf("unmanaged = %d, want 1", rep.Counts[UnmanagedRoot])
	}
	if rep.Total != 4 {
		t.Errorf("total = %d, want 4", rep.Total)
	}
	if len(rep.Examples[MissingFile]) != 1 {
		t.Errorf("examples not bounded: %+v", rep.Examples[MissingFile])
	}

	// Read-only: nothing moved.
	if !uploads.Exists("a.png") {
		t.Error("audit moved a file")
	}
}
