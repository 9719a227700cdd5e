package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/tolo-delivery/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами.
// Каждое изменение - одна точечная операция по id, транзакции не нужны.
type OrderStorage interface {
	// CreateOrder вставляет заказ; ID должен быть сгенерирован заранее.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	// UpdateOrderStatus перезаписывает статус заказа.
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
	SetCheckoutURL(ctx context.Context, id string, checkoutURL string) error
	// GetOrdersByUserID возвращает заказы пользователя, новые первыми.
	GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
}

// orderRepository - конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const selectOrder = `SELECT id, user_id, phone, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	item, quantity, price, payment_method, status, checkout_url, created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var checkoutURL sql.NullString
	if err := row.Scan(
		&order.ID, &order.UserID, &order.Phone,
		&order.Pickup.Lat, &order.Pickup.Lng, &order.Dropoff.Lat, &order.Dropoff.Lng,
		&order.Item, &order.Quantity, &order.Price, &order.PaymentMethod, &order.Status,
		&checkoutURL, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.CheckoutURL = checkoutURL.String
	return order, nil
}

// CreateOrder вставляет новый заказ в таблицу orders.
func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (id, user_id, phone, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	          item, quantity, price, payment_method, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		order.ID, order.UserID, order.Phone,
		order.Pickup.Lat, order.Pickup.Lng, order.Dropoff.Lat, order.Dropoff.Lng,
		order.Item, order.Quantity, order.Price, order.PaymentMethod, order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) SetCheckoutURL(ctx context.Context, id string, checkoutURL string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE orders SET checkout_url = $2, updated_at = NOW() WHERE id = $1", id, checkoutURL)
	if err != nil {
		return fmt.Errorf("failed to set checkout url: %w", err)
	}
	return nil
}

// GetOrdersByUserID возвращает список заказов пользователя.
func (r *orderRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}
