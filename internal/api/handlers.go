package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/importer"
)

// Handler holds API route handlers.
type Handler struct {
	svc *assetservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *assetservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListAssets handles GET /api/assets.
//
//	@Summary		List or search inventory entries
//	@Tags			assets
//	@Produce		json
//	@Param			q		query		string	false	"Substring of file name or url"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	AssetListResponse
//	@Security		BearerAuth
//	@Router			/assets [get]
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.svc.List(r.Context(), q.Get("q"), limit, offset)
	if err != nil {
		writeError(w, "list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, AssetListResponse{Assets: items, Total: total})
}

// GetAsset handles GET /api/assets/{id}.
//
//	@Summary		Get one inventory entry
//	@Tags			assets
//	@Produce		json
//	@Param			id	path		string	true	"Asset id"
//	@Success		200	{object}	models.InventoryEntry
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{id} [get]
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ImportAsset handles POST /api/assets/import.
//
//	@Summary		Import a remote image into the uploads root
//	@Tags			assets
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Remote image"
//	@Success		201		{object}	importer.Result
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/import [post]
func (h *Handler) ImportAsset(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ir := req.toRequest()
	res, err := h.svc.Import(r.Context(), ir.URL, ir.Options)
	if err != nil {
		writeError(w, "import asset", err)
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// ImportBatch handles POST /api/assets/import/batch. Item failures are
// reported in the body; the response status is 200 whenever the batch ran.
func (h *Handler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reqs := make([]importer.Request, len(req.Items))
	for i, it := range req.Items {
		reqs[i] = it.toRequest()
	}
	writeJSON(w, http.StatusOK, h.svc.ImportMany(r.Context(), reqs))
}

// DeriveAsset handles POST /api/assets/{id}/derivatives.
func (h *Handler) DeriveAsset(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Derive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "derive asset", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// SetFocalPoint handles PUT /api/assets/{id}/focal-point.
//
//	@Summary		Set a shared or per-preset focal point and regenerate derivatives
//	@Tags			assets
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Asset id"
//	@Param			body	body		FocalPointRequest	true	"Focal point"
//	@Success		200		{object}	models.InventoryEntry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{id}/focal-point [put]
func (h *Handler) SetFocalPoint(w http.ResponseWriter, r *http.Request) {
	var req FocalPointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.SetFocalPoint(r.Context(), chi.URLParam(r, "id"), req.Preset, req.point())
	if err != nil {
		writeError(w, "set focal point", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Audit handles GET /api/maintenance/audit.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Audit(r.Context())
	if err != nil {
		writeError(w, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Relocate handles POST /api/maintenance/relocate. Without apply=true it
// only returns the plan.
//
//	@Summary		Plan or apply asset relocation
//	@Tags			maintenance
//	@Produce		json
//	@Param			apply	query		bool	false	"Apply the plan"
//	@Success		200		{object}	RelocationResponse
//	@Security		BearerAuth
//	@Router			/maintenance/relocate [post]
func (h *Handler) Relocate(w http.ResponseWriter, r *http.Request) {
	if !applyParam(r) {
		plan, err := h.svc.PlanRelocation(r.Context())
		if err != nil {
			writeError(w, "plan relocation", err)
			return
		}
		writeJSON(w, http.StatusOK, RelocationResponse{Plan: plan})
		return
	}
	plan, res, err := h.svc.ApplyRelocation(r.Context())
	if err != nil {
		writeError(w, "apply relocation", err)
		return
	}
	writeJSON(w, http.StatusOK, RelocationResponse{Applied: true, Plan: plan, Result: res})
}

// CollectGarbage handles POST /api/maintenance/gc. Without apply=true it is
// a preview.
func (h *Handler) CollectGarbage(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.CollectGarbage(r.Context(), applyParam(r))
	if err != nil {
		writeError(w, "collect garbage", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Reconcile handles POST /api/maintenance/reconcile.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Reconcile(r.Context())
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	slog.Debug("reconcile requested", slog.Int("backfilled", n))
	writeJSON(w, http.StatusOK, map[string]int{"backfilled": n})
}

func applyParam(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("apply"))
	return v
}
