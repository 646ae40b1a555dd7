package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/common"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Service *Service
	Log     zerolog.Logger
}

type createSessionRequest struct {
	ProductCode string            `json:"product_code"`
	Quantity    int32             `json:"quantity"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateSession handles POST /api/v1/checkout/session.
func (h Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}

	result, err := h.Service.CreateSession(r.Context(), userID, CreateSessionInput{
		ProductCode: req.ProductCode,
		Quantity:    req.Quantity,
		Metadata:    req.Metadata,
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		h.Log.Error().Err(err).Str("user_id", userID).Msg("checkout session creation failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create checkout session", nil)
		return
	}

	common.JSON(w, http.StatusOK, result)
}
