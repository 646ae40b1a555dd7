package catalog

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/common"
)

// Handler exposes the product catalog over HTTP. The listing is public; it
// only reveals what the checkout page shows anyway.
type Handler struct {
	Service      *Service
	Log          zerolog.Logger
	DefaultLimit int32
	MaxLimit     int32
}

// ListProducts handles GET /api/v1/products.
func (h Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	def := h.DefaultLimit
	if def <= 0 {
		def = 20
	}
	max := h.MaxLimit
	if max <= 0 {
		max = 100
	}

	limit := queryInt32(r.URL.Query().Get("limit"), def)
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset := queryInt32(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	views, err := h.Service.ListProducts(r.Context(), limit, offset)
	if err != nil {
		h.Log.Error().Err(err).Msg("catalog listing failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list products", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items":  views,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt32(raw string, fallback int32) int32 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(v)
}
