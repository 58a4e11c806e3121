package assetservice

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/sse"
)

var uploadNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,119}$`)

// Upload stores a file sent by an author into folder. The payload passes the
// same checks as an import: size and dimension limits, decodable headers and
// SVG sanitizing. The stored extension follows the detected content. An
// existing file with the same name is never overwritten.
func (s *Service) Upload(ctx context.Context, folder, name string, data []byte) (*models.InventoryEntry, error) {
	folder, ok := pathrules.CleanFolder(folder)
	if !ok {
		return nil, fmt.Errorf("%w: invalid folder", apperr.ErrInvalidInput)
	}
	name = path.Base(strings.TrimSpace(name))
	if !uploadNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid file name %q", apperr.ErrInvalidInput, name)
	}
	kind, data, err := s.Importer.Check(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	rel := path.Join(folder, strings.TrimSuffix(name, path.Ext(name))+kind.Ext())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Files.Exists(rel) {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.Files.Write(rel, data); err != nil {
		return nil, err
	}
	e := inventory.NewEntry(s.Rules, rel, data, time.Now())
	if err := s.Inventory.Upsert(ctx, e); err != nil {
		return nil, err
	}
	s.events.Publish(sse.Event{Type: sse.AssetImported, Data: map[string]any{
		"id":     e.ID,
		"url":    e.URL,
		"source": "upload",
	}})
	return e, nil
}
