package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/api/response"
	"github.com/linemk/tolo-delivery/internal/service"
)

type PriceRequest struct {
	Pickup  *models.Location `json:"pickup" validate:"required"`
	Dropoff *models.Location `json:"dropoff" validate:"required"`
}

// PriceHandler обрабатывает POST /api/price
func PriceHandler(log *slog.Logger, priceService service.PriceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PriceHandler"
		logger := log.With(slog.String("op", op))

		var req PriceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			response.BadRequest(w, logger, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Warn("invalid request: validation error", slog.Any("error", err))
			response.ValidationError(w, logger, err)
			return
		}

		quote, err := priceService.Quote(r.Context(), *req.Pickup, *req.Dropoff)
		if err != nil {
			logger.Error("failed to quote price", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		if err := response.JSON(w, http.StatusOK, quote); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
