package inventory

import (
	"context"

	"github.com/starford/mediakeep/internal/models"
)

// Store is the system of record for assets. Consumers should depend on this
// interface rather than the concrete *DB type.
type Store interface {
	Upsert(ctx context.Context, e *models.InventoryEntry) error
	Get(ctx context.Context, id string) (*models.InventoryEntry, error)
	GetByURL(ctx context.Context, url string) (*models.InventoryEntry, error)
	All(ctx context.Context) ([]models.InventoryEntry, error)
	AllURLs(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, oldURL, newURL, fileName, folder, area string) error
	Search(ctx context.Context, query string, limit, offset int) ([]models.InventoryEntry, int, error)

	JournalRecord(ctx context.Context, oldURL, newURL string) error
	JournalMark(ctx context.Context, oldURL string, state JournalState) error
	JournalList(ctx context.Context) ([]JournalRow, error)
	JournalDelete(ctx context.Context, oldURL string) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
