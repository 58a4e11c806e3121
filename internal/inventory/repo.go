package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/models"
)

const selectCols = `id, url, file_name, folder, size, mime, width, height, created_at,
	hash_sha256, focal_point, focal_points, variants, variants_version, variant_bytes, area`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*models.InventoryEntry, error) {
	var (
		e                      models.InventoryEntry
		width, height          sql.NullInt64
		focal, focals, variants string
	)
	err := r.Scan(&e.ID, &e.URL, &e.FileName, &e.Folder, &e.Size, &e.MIME, &width, &height, &e.CreatedAt,
		&e.HashSHA256, &focal, &focals, &variants, &e.VariantsVersion, &e.VariantBytes, &e.Area)
	if err != nil {
		return nil, err
	}
	if width.Valid {
		w := int(width.Int64)
		e.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		e.Height = &h
	}
	if err := json.Unmarshal([]byte(focal), &e.FocalPoint); err != nil {
		return nil, fmt.Errorf("inventory: decode focal_point: %w", err)
	}
	if err := json.Unmarshal([]byte(focals), &e.FocalPoints); err != nil {
		return nil, fmt.Errorf("inventory: decode focal_points: %w", err)
	}
	if err := json.Unmarshal([]byte(variants), &e.Variants); err != nil {
		return nil, fmt.Errorf("inventory: decode variants: %w", err)
	}
	return &e, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Upsert inserts or replaces an entry keyed by id. A different entry already
// holding the same url yields apperr.ErrConflict.
func (db *DB) Upsert(ctx context.Context, e *models.InventoryEntry) error {
	focal, _ := json.Marshal(e.FocalPoint)
	focals, _ := json.Marshal(e.FocalPoints)
	variants, _ := json.Marshal(e.Variants)

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO assets (`+selectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url              = excluded.url,
			file_name        = excluded.file_name,
			folder           = excluded.folder,
			size             = excluded.size,
			mime             = excluded.mime,
			width            = excluded.width,
			height           = excluded.height,
			hash_sha256      = excluded.hash_sha256,
			focal_point      = excluded.focal_point,
			focal_points     = excluded.focal_points,
			variants         = excluded.variants,
			variants_version = excluded.variants_version,
			variant_bytes    = excluded.variant_bytes,
			area             = excluded.area
	`, e.ID, e.URL, e.FileName, e.Folder, e.Size, e.MIME, nullInt(e.Width), nullInt(e.Height), e.CreatedAt.UTC(),
		e.HashSHA256, string(focal), string(focals), string(variants), e.VariantsVersion, e.VariantBytes, e.Area)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inventory: upsert %s: %w", e.URL, apperr.ErrConflict)
		}
		return fmt.Errorf("inventory: upsert: %w", err)
	}
	return nil
}

// Get returns the entry with the given id.
func (db *DB) Get(ctx context.Context, id string) (*models.InventoryEntry, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+selectCols+` FROM assets WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: get: %w", err)
	}
	return e, nil
}

// GetByURL returns the entry for a normalized asset URL.
func (db *DB) GetByURL(ctx context.Context, url string) (*models.InventoryEntry, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+selectCols+` FROM assets WHERE url = ?`, url)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: get by url: %w", err)
	}
	return e, nil
}

func (db *DB) query(ctx context.Context, q string, args ...any) ([]models.InventoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.InventoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// All returns every entry ordered by url.
func (db *DB) All(ctx context.Context) ([]models.InventoryEntry, error) {
	out, err := db.query(ctx, `SELECT `+selectCols+` FROM assets ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("inventory: all: %w", err)
	}
	return out, nil
}

// AllURLs maps every known url to its entry id.
func (db *DB) AllURLs(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT url, id FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("inventory: all urls: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var u, id string
		if err := rows.Scan(&u, &id); err != nil {
			return nil, err
		}
		out[u] = id
	}
	return out, rows.Err()
}

// Delete removes an entry. Deleting a missing id is not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("inventory: delete: %w", err)
	}
	return nil
}

// Rename points the entry for oldURL at its relocated file.
func (db *DB) Rename(ctx context.Context, oldURL, newURL, fileName, folder, area string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE assets SET url = ?, file_name = ?, folder = ?, area = ? WHERE url = ?`,
		newURL, fileName, folder, area, oldURL)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inventory: rename %s: %w", oldURL, apperr.ErrConflict)
		}
		return fmt.Errorf("inventory: rename: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Search matches file names and urls case-insensitively. An empty query
// lists everything. It also returns the total match count.
func (db *DB) Search(ctx context.Context, query string, limit, offset int) ([]models.InventoryEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(q)) + "%"
		where = ` WHERE lower(file_name) LIKE ? ESCAPE '\' OR lower(url) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM assets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: search count: %w", err)
	}
	out, err := db.query(ctx, `SELECT `+selectCols+` FROM assets`+where+` ORDER BY url LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: search: %w", err)
	}
	return out, total, nil
}
