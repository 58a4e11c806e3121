package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/mediakeep/internal/importer"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/relocate"
)

// maxBatchItems bounds a single batch import request.
const maxBatchItems = 100

// ImportRequest is the request body for importing one remote image.
type ImportRequest struct {
	URL    string `json:"url" example:"https://cdn.example.com/cover.jpg" validate:"required"`
	Folder string `json:"folder,omitempty" example:"projects/alpha"`
	Base   string `json:"base,omitempty" example:"relation-42"`
	Reuse  bool   `json:"reuse,omitempty"`
}

// Validate checks the request shape. Host and folder policy is enforced by
// the importer.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, validation.Length(1, 2048), is.URL),
	)
}

func (r ImportRequest) toRequest() importer.Request {
	reuse := importer.ReuseNever
	if r.Reuse {
		reuse = importer.ReuseIfValid
	}
	return importer.Request{URL: r.URL, Options: importer.Options{Folder: r.Folder, Base: r.Base, Reuse: reuse}}
}

// BatchImportRequest is the request body for a batch import.
type BatchImportRequest struct {
	Items []ImportRequest `json:"items" validate:"required"`
}

// Validate checks the item count and every item.
func (r BatchImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Items, validation.Required, validation.Length(1, maxBatchItems)),
	)
}

// FocalPointRequest is the request body for PUT /assets/{id}/focal-point.
// An empty preset sets the shared focal point.
type FocalPointRequest struct {
	Preset string   `json:"preset,omitempty" example:"hero"`
	X      *float64 `json:"x" example:"0.5" validate:"required"`
	Y      *float64 `json:"y" example:"0.3" validate:"required"`
}

// Validate checks that both coordinates are present and in [0,1].
func (r FocalPointRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.X, validation.NotNil, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.Y, validation.NotNil, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (r FocalPointRequest) point() models.FocalPoint {
	return models.FocalPoint{X: *r.X, Y: *r.Y}
}

// AssetListResponse wraps paginated inventory listings.
type AssetListResponse struct {
	Assets []models.InventoryEntry `json:"assets" validate:"required"`
	Total  int                     `json:"total" example:"42" validate:"required"`
}

// RelocationResponse is returned by POST /maintenance/relocate. Result is
// only present when the plan was applied.
type RelocationResponse struct {
	Applied bool             `json:"applied"`
	Plan    *relocate.Plan   `json:"plan"`
	Result  *relocate.Result `json:"result,omitempty"`
}
