package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/linemk/tolo-delivery/internal/distance"
	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/gateway"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
	"github.com/linemk/tolo-delivery/internal/lib/metrics"
	"github.com/linemk/tolo-delivery/internal/storage"
)

// PaymentGateway - внешний платёжный шлюз
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error)
	Verify(ctx context.Context, reference string) (*gateway.Verification, error)
}

type OrderService interface {
	Create(ctx context.Context, user *models.User, in CreateOrderInput) (*CreateOrderResult, error)
	HandleCallback(ctx context.Context, reference, reportedStatus string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Order, error)
}

// maxPrice - верхняя граница цены: price хранится как NUMERIC(12, 2)
const maxPrice = 1e10

// OrderConfig - параметры оплаты, общие для всех заказов
type OrderConfig struct {
	Currency  string
	PublicKey string
}

// CreateOrderInput - данные нового заказа. nil означает, что поле не передано.
type CreateOrderInput struct {
	Pickup        *models.Location
	Dropoff       *models.Location
	Item          string
	Quantity      int
	Price         *float64
	PaymentMethod models.PaymentMethod
}

// InlinePayment - параметры для встроенной формы оплаты на клиенте
type InlinePayment struct {
	PublicKey   string  `json:"public_key"`
	TxRef       string  `json:"tx_ref"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
}

type CreateOrderResult struct {
	Order       *models.Order
	CheckoutURL string
	Inline      *InlinePayment
}

type orderService struct {
	log       *slog.Logger
	orderRepo storage.OrderStorage
	gateway   PaymentGateway
	cfg       OrderConfig
	metrics   *metrics.Metrics
	newID     func() string
}

func NewOrderService(log *slog.Logger, orderRepo storage.OrderStorage, gw PaymentGateway, cfg OrderConfig, m *metrics.Metrics) OrderService {
	return &orderService{
		log:       log,
		orderRepo: orderRepo,
		gateway:   gw,
		cfg:       cfg,
		metrics:   m,
		newID:     uuid.NewString,
	}
}

// Create сохраняет заказ в статусе pending и, если оплата идёт через шлюз,
// инициализирует платёж с tx_ref = ID заказа.
// При отказе шлюза заказ остаётся сохранённым: возвращается и результат, и ошибка ErrGatewayInitFailed.
func (s *orderService) Create(ctx context.Context, user *models.User, in CreateOrderInput) (*CreateOrderResult, error) {
	const op = "service.OrderService.Create"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", user.ID))

	if in.Pickup == nil || in.Dropoff == nil || !validPrice(in.Price) {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidOrder)
	}
	if err := distance.Validate(*in.Pickup); err != nil {
		return nil, fmt.Errorf("%s: pickup: %w", op, err)
	}
	if err := distance.Validate(*in.Dropoff); err != nil {
		return nil, fmt.Errorf("%s: dropoff: %w", op, err)
	}

	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, "invalid_quantity", "quantity must be positive"))
	}

	method := in.PaymentMethod
	if method == "" {
		method = models.PaymentCash
	}
	if method != models.PaymentCash && !method.UsesGateway() {
		return nil, fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, "invalid_payment_method", "unknown payment method"))
	}

	// ID выдаётся до записи и до обращения к шлюзу
	order := &models.Order{
		ID:            s.newID(),
		UserID:        user.ID,
		Phone:         user.Phone,
		Pickup:        *in.Pickup,
		Dropoff:       *in.Dropoff,
		Item:          strings.TrimSpace(in.Item),
		Quantity:      quantity,
		Price:         *in.Price,
		PaymentMethod: method,
		Status:        models.OrderStatusPending,
	}
	logger = logger.With(slog.String("orderID", order.ID), slog.String("method", string(method)))

	if err := s.orderRepo.CreateOrder(ctx, order); err != nil {
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(string(method)).Inc()
	}
	logger.Info("order created", slog.Float64("price", order.Price))

	result := &CreateOrderResult{Order: order}
	if !method.UsesGateway() {
		return result, nil
	}

	checkout, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Amount:    order.Price,
		Currency:  s.cfg.Currency,
		Reference: order.ID,
		Customer: gateway.Customer{
			Phone:     customerPhone(user),
			FirstName: user.DisplayName,
		},
	})
	if err != nil {
		logger.Error("gateway initialization failed, order stays pending", slog.Any("error", err))
		return result, fmt.Errorf("%s: %w: %v", op, apperr.ErrGatewayInitFailed, err)
	}

	order.CheckoutURL = checkout.CheckoutURL
	if err := s.orderRepo.SetCheckoutURL(ctx, order.ID, checkout.CheckoutURL); err != nil {
		logger.Warn("failed to store checkout url", slog.Any("error", err))
	}

	result.CheckoutURL = checkout.CheckoutURL
	if method == models.PaymentGatewayInline {
		result.Inline = &InlinePayment{
			PublicKey:   s.cfg.PublicKey,
			TxRef:       order.ID,
			Amount:      order.Price,
			Currency:    s.cfg.Currency,
			CheckoutURL: checkout.CheckoutURL,
		}
	}
	return result, nil
}

// HandleCallback применяет уведомление об оплате к заказу.
// Для заказов через шлюз статус из уведомления не используется: итог берётся из gateway.Verify по reference.
// Наличный заказ шлюзу неизвестен, для него итог берётся из самого уведомления.
// Запись статуса - перезапись по id, поэтому повтор того же уведомления ничего не меняет.
// Оплаченный заказ больше не трогается.
func (s *orderService) HandleCallback(ctx context.Context, reference, reportedStatus string) (*models.Order, error) {
	const op = "service.OrderService.HandleCallback"
	reference = strings.TrimSpace(reference)
	logger := s.log.With(
		slog.String("op", op),
		slog.String("reference", reference),
		slog.String("reportedStatus", reportedStatus),
	)

	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrMissingReference)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, reference)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			logger.Warn("callback for unknown order")
			s.countCallback("unknown")
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrOrderNotFound)
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if order.Status == models.OrderStatusPaid {
		logger.Info("order already paid")
		s.countCallback("duplicate")
		return order, nil
	}

	var status models.OrderStatus
	if order.PaymentMethod.UsesGateway() {
		status, err = s.verifiedStatus(ctx, logger, order)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		status = reportedOutcome(reportedStatus)
	}

	// failed не окончателен: поздняя подтверждённая оплата переводит заказ в paid
	if err := s.orderRepo.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}
	order.Status = status
	s.countCallback(string(status))

	logger.Info("order status updated", slog.String("status", string(status)), slog.String("method", string(order.PaymentMethod)))
	return order, nil
}

// verifiedStatus спрашивает шлюз об итоге платежа. Недоплата считается неуспехом.
func (s *orderService) verifiedStatus(ctx context.Context, logger *slog.Logger, order *models.Order) (models.OrderStatus, error) {
	verification, err := s.gateway.Verify(ctx, order.ID)
	if err != nil {
		logger.Error("gateway verification failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", apperr.ErrGatewayVerify, err)
	}

	logger.Debug("gateway verification", slog.String("gatewayStatus", verification.Status))
	if !verification.Succeeded() {
		return models.OrderStatusFailed, nil
	}
	if verification.Amount+0.005 < order.Price {
		logger.Warn("verified amount is below order price",
			slog.Float64("verified", verification.Amount),
			slog.Float64("price", order.Price),
		)
		return models.OrderStatusFailed, nil
	}
	return models.OrderStatusPaid, nil
}

// reportedOutcome переводит статус из уведомления в статус заказа
func reportedOutcome(reported string) models.OrderStatus {
	if strings.EqualFold(strings.TrimSpace(reported), "success") {
		return models.OrderStatusPaid
	}
	return models.OrderStatusFailed
}

func validPrice(price *float64) bool {
	if price == nil || math.IsNaN(*price) || math.IsInf(*price, 0) {
		return false
	}
	return *price >= 0 && *price < maxPrice
}

// ListByUser возвращает заказы пользователя
func (s *orderService) ListByUser(ctx context.Context, userID int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListByUser"
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get orders: %w", op, err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

func (s *orderService) countCallback(outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentCallbacks.WithLabelValues(outcome).Inc()
	}
}

// шлюзу не нужен синтетический ключ tg:<id>
func customerPhone(user *models.User) string {
	if strings.HasPrefix(user.Phone, TelegramPhonePrefix) {
		return ""
	}
	return user.Phone
}
