package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler exposes read-only master-data lookups.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
}

// NewHandler constructs masterdata handler.
func NewHandler(logger *slog.Logger, directory *Directory) *Handler {
	return &Handler{logger: logger, directory: directory}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/skus/{skuID}", h.handleGetSKU)
	r.Get("/skus/{skuID}/bom", h.handleGetBOM)
	r.Get("/skus/{skuID}/vendor", h.handleGetVendor)
	r.Get("/zones/{zoneID}", h.handleGetZone)
	r.Get("/zones", h.handleZoneByType)
}

func (h *Handler) handleGetSKU(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	skuID, _ := strconv.ParseInt(chi.URLParam(r, "skuID"), 10, 64)
	sku, err := h.directory.GetSKU(r.Context(), companyID, skuID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sku)
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	skuID, _ := strconv.ParseInt(chi.URLParam(r, "skuID"), 10, 64)
	lines, err := h.directory.GetBOMLines(r.Context(), companyID, skuID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	skuID, _ := strconv.ParseInt(chi.URLParam(r, "skuID"), 10, 64)
	vendor, err := h.directory.GetPreferredVendor(r.Context(), companyID, skuID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) handleGetZone(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	zoneID, _ := strconv.ParseInt(chi.URLParam(r, "zoneID"), 10, 64)
	zone, err := h.directory.GetZone(r.Context(), companyID, zoneID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, zone)
}

func (h *Handler) handleZoneByType(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	zone, err := h.directory.ZoneByType(r.Context(), companyID, ZoneType(r.URL.Query().Get("type")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, zone)
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}
