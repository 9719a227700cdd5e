package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/tolo-delivery/internal/lib/api/response"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
	"github.com/linemk/tolo-delivery/internal/service"
)

// OrderRequest представляет входной JSON нового заказа.
type OrderRequest struct {
	Pickup        *models.Location `json:"pickup" validate:"required"`
	Dropoff       *models.Location `json:"dropoff" validate:"required"`
	Item          string           `json:"item"`
	Quantity      int              `json:"quantity" validate:"gte=0"`
	Price         *float64         `json:"price" validate:"required"`
	PaymentMethod string           `json:"payment_method" validate:"omitempty,oneof=cash gateway_redirect gateway_inline"`
}

type OrderResponse struct {
	Message     string                 `json:"message"`
	OrderID     string                 `json:"order_id"`
	Status      models.OrderStatus     `json:"status"`
	CheckoutURL string                 `json:"checkout_url,omitempty"`
	Inline      *service.InlinePayment `json:"inline,omitempty"`
}

// GatewayErrorResponse - заказ сохранён, но шлюз не выдал ссылку на оплату
type GatewayErrorResponse struct {
	response.ErrorResponse
	OrderID string `json:"order_id"`
}

type OrdersResponse struct {
	Orders []*models.Order `json:"orders"`
}

// CreateOrderHandler обрабатывает POST /api/order
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		// Пользователь установлен middleware аутентификации
		user, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("user not found in context")
			response.Error(w, logger, apperr.ErrTokenMissing)
			return
		}

		var req OrderRequest
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

		result, err := orderService.Create(r.Context(), user, service.CreateOrderInput{
			Pickup:        req.Pickup,
			Dropoff:       req.Dropoff,
			Item:          req.Item,
			Quantity:      req.Quantity,
			Price:         req.Price,
			PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		})
		if err != nil {
			if result != nil && errors.Is(err, apperr.ErrGatewayInitFailed) {
				logger.Error("order saved but payment was not initialized", slog.String("orderID", result.Order.ID), slog.Any("error", err))
				resp := GatewayErrorResponse{
					ErrorResponse: response.ErrorResponse{
						Error:   apperr.ErrGatewayInitFailed.Msg,
						Details: apperr.ErrGatewayInitFailed.Code,
					},
					OrderID: result.Order.ID,
				}
				if err := response.JSON(w, http.StatusBadGateway, resp); err != nil {
					logger.Error("failed to encode response", slog.Any("error", err))
				}
				return
			}
			logger.Error("failed to create order", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		resp := OrderResponse{
			Message:     "order created",
			OrderID:     result.Order.ID,
			Status:      result.Order.Status,
			CheckoutURL: result.CheckoutURL,
			Inline:      result.Inline,
		}
		if err := response.JSON(w, http.StatusCreated, resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// ListOrdersHandler обрабатывает GET /api/orders
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		user, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("user not found in context")
			response.Error(w, logger, apperr.ErrTokenMissing)
			return
		}

		orders, err := orderService.ListByUser(r.Context(), user.ID)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		if err := response.JSON(w, http.StatusOK, OrdersResponse{Orders: orders}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
