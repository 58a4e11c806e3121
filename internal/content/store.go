// Package content loads and saves the content records that reference
// assets: posts, projects, the site configuration, and static pages.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/parser"
	"github.com/starford/mediakeep/internal/storage"
)

// Collection names a content collection.
type Collection string

const (
	Posts    Collection = "posts"
	Projects Collection = "projects"
	Site     Collection = "site"
	Pages    Collection = "pages"
)

// Collections lists every collection in a stable order.
var Collections = []Collection{Posts, Projects, Site, Pages}

// Snapshot is an in-memory copy of every collection.
type Snapshot struct {
	Posts    []models.Post
	Projects []models.Project
	Site     models.SiteConfig
	Pages    []models.Page
}

// Store reads and replaces whole collections.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, c Collection, snap *Snapshot) error
}

const (
	postsFile    = "posts.yaml"
	projectsFile = "projects.yaml"
	siteFile     = "site.yaml"
	pagesDir     = "pages"
)

// FileStore keeps collections as YAML files, and pages as Markdown files,
// inside a rooted directory.
type FileStore struct {
	fs *storage.FS
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by fs.
func NewFileStore(fs *storage.FS) *FileStore {
	return &FileStore{fs: fs}
}

// Dir returns the absolute content directory.
func (s *FileStore) Dir() string { return s.fs.Root() }

// Load reads every collection. Missing files load as empty collections.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := s.readYAML(postsFile, &snap.Posts); err != nil {
		return nil, err
	}
	if err := s.readYAML(projectsFile, &snap.Projects); err != nil {
		return nil, err
	}
	if err := s.readYAML(siteFile, &snap.Site); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metas, err := s.fs.List(pagesDir)
	if err != nil {
		return nil, fmt.Errorf("content: list pages: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })
	for _, m := range metas {
		if !strings.HasSuffix(m.Path, ".md") {
			continue
		}
		data, err := s.fs.Read(m.Path)
		if err != nil {
			return nil, fmt.Errorf("content: read page: %w", err)
		}
		snap.Pages = append(snap.Pages, models.Page{
			Path:    strings.TrimPrefix(m.Path, pagesDir+"/"),
			Title:   parser.Parse(data).Title,
			Content: string(data),
		})
	}
	return snap, nil
}

func (s *FileStore) readYAML(name string, target any) error {
	data, err := s.fs.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("content: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("content: parse %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeYAML(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("content: encode %s: %w", name, err)
	}
	if err := s.fs.Write(name, data); err != nil {
		return fmt.Errorf("content: write %s: %w", name, err)
	}
	return nil
}

// Save replaces one collection with its contents in snap. Pages are written
// one file each. An unknown collection is a programming error.
func (s *FileStore) Save(ctx context.Context, c Collection, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch c {
	case Posts:
		return s.writeYAML(postsFile, snap.Posts)
	case Projects:
		return s.writeYAML(projectsFile, snap.Projects)
	case Site:
		return s.writeYAML(siteFile, snap.Site)
	case Pages:
		for _, p := range snap.Pages {
			if err := s.fs.Write(path.Join(pagesDir, p.Path), []byte(p.Content)); err != nil {
				return fmt.Errorf("content: write page %s: %w", p.Path, err)
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("content: unknown collection %q", c))
	}
}
