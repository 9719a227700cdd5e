package handlers

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/api/response"
	"github.com/linemk/tolo-delivery/internal/service"
)

// CallbackRequest - уведомление шлюза. Шлюз присылает trx_ref или tx_ref.
type CallbackRequest struct {
	TrxRef string `json:"trx_ref"`
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
}

type CallbackResponse struct {
	OrderID string             `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
}

// PaymentCallbackHandler обрабатывает GET|POST /api/pay/callback.
// Параметры берутся из query, формы или JSON-тела.
func PaymentCallbackHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PaymentCallbackHandler"
		logger := log.With(slog.String("op", op))

		req, err := parseCallback(r)
		if err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			response.BadRequest(w, logger, "invalid request")
			return
		}

		reference := req.TrxRef
		if reference == "" {
			reference = req.TxRef
		}

		order, err := orderService.HandleCallback(r.Context(), reference, req.Status)
		if err != nil {
			logger.Warn("callback rejected", slog.String("reference", reference), slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		resp := CallbackResponse{OrderID: order.ID, Status: order.Status}
		if err := response.JSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

func parseCallback(r *http.Request) (*CallbackRequest, error) {
	var req CallbackRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method == http.MethodPost && mediaType == "application/json" && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
	}

	// query и form-urlencoded дополняют то, чего нет в JSON
	if req.TrxRef == "" {
		req.TrxRef = r.FormValue("trx_ref")
	}
	if req.TxRef == "" {
		req.TxRef = r.FormValue("tx_ref")
	}
	if req.Status == "" {
		req.Status = r.FormValue("status")
	}
	return &req, nil
}
