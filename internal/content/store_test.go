package content

import (
	"context"
	"testing"

	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/storage"
)

func newStore(t *testing.T) (*FileStore, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewFileStore(fs), fs
}

func TestLoadEmptyDirectory(t *testing.T) {
	s, _ := newStore(t)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Posts) != 0 || len(snap.Projects) != 0 || len(snap.Pages) != 0 || snap.Site.Logo != "" {
		t.Errorf("snap = %+v", snap)
	}
}

func TestSaveAndLoadCollections(t *testing.T) {
	s, fs := newStore(t)
	ctx := context.Background()
	snap := &Snapshot{
		Posts:    []models.Post{{ID: "p1", Slug: "hello", Title: "Hello", Cover: "/uploads/a.png"}},
		Projects: []models.Project{{ID: "1", Slug: "alpha", Episodes: []models.Episode{{ID: "e1", Cover: "/uploads/e.png"}}}},
		Site:     models.SiteConfig{Logo: "/uploads/logo.svg"},
		Pages:    []models.Page{{Path: "about.md", Content: "---\ntitle: About\n---\n![](/uploads/me.jpg)\n"}},
	}
	for _, c := range Collections {
		if err := s.Save(ctx, c, snap); err != nil {
			t.Fatalf("save %s: %v", c, err)
		}
	}
	if !fs.Exists("posts.yaml") || !fs.Exists("pages/about.md") {
		t.Fatal("collection files not written")
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Posts) != 1 || got.Posts[0].Cover != "/uploads/a.png" {
		t.Errorf("posts = %+v", got.Posts)
	}
	if len(got.Projects) != 1 || got.Projects[0].Episodes[0].Cover != "/uploads/e.png" {
		t.Errorf("projects = %+v", got.Projects)
	}
	if got.Site.Logo != "/uploads/logo.svg" {
		t.Errorf("site = %+v", got.Site)
	}
	if len(got.Pages) != 1 || got.Pages[0].Path != "about.md" || got.Pages[0].Title != "About" {
		t.Errorf("pages = %+v", got.Pages)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	s, fs := newStore(t)
	if err := fs.Write("projects.yaml", []byte("- id: [unclosed\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadHonoursCancellation(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Load(ctx); err == nil {
		t.Error("expected context error")
	}
	if err := s.Save(ctx, Posts, &Snapshot{}); err == nil {
		t.Error("expected context error on save")
	}
}
