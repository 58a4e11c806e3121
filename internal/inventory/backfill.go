package inventory

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/checksum"
	"github.com/starford/mediakeep/internal/imagemeta"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
)

// NewEntry builds an inventory entry for the file at rel from its bytes.
func NewEntry(rules *pathrules.Rules, rel string, data []byte, created time.Time) *models.InventoryEntry {
	e := &models.InventoryEntry{
		ID:         uuid.NewString(),
		URL:        rules.URLFor(rel),
		FileName:   path.Base(rel),
		Folder:     folderOf(rel),
		Size:       int64(len(data)),
		MIME:       imagemeta.MIMEByName(rel),
		CreatedAt:  created.UTC(),
		HashSHA256: checksum.Sum(data),
		Area:       pathrules.Area(rel),
	}
	kind := imagemeta.Sniff(data)
	if kind == imagemeta.KindUnknown {
		kind = imagemeta.KindFromExt(path.Ext(rel))
	}
	if kind.Raster() {
		if w, h, err := imagemeta.Dimensions(kind, data); err == nil {
			e.Width, e.Height = &w, &h
		}
	}
	return e
}

func folderOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// Backfill creates entries for referenced urls that have a file on disk but
// no inventory entry. Missing files are skipped. It returns the number of
// entries created.
func Backfill(ctx context.Context, db Store, files storage.Provider, rules *pathrules.Rules, urls []string, logger *slog.Logger) (int, error) {
	known, err := db.AllURLs(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if _, ok := known[u]; ok {
			continue
		}
		rel, ok := rules.RelativePath(u)
		if !ok {
			continue
		}
		info, err := files.Stat(rel)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := files.Read(rel)
		if err != nil {
			logger.Warn("backfill: read failed", slog.String("url", u), slog.String("error", err.Error()))
			continue
		}
		e := NewEntry(rules, rel, data, info.ModTime())
		e.URL = u
		if err := db.Upsert(ctx, e); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				continue
			}
			logger.Warn("backfill: upsert failed", slog.String("url", u), slog.String("error", err.Error()))
			continue
		}
		known[u] = e.ID
		created++
		logger.Debug("backfill: created", slog.String("url", u))
	}
	return created, nil
}
