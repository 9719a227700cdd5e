package models

import "time"

// OrderStatus - состояние заказа: pending -> paid | failed
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// PaymentMethod - способ оплаты заказа
type PaymentMethod string

const (
	PaymentCash            PaymentMethod = "cash"
	PaymentGatewayRedirect PaymentMethod = "gateway_redirect"
	PaymentGatewayInline   PaymentMethod = "gateway_inline"
)

// UsesGateway сообщает, проходит ли оплата через платёжный шлюз
func (m PaymentMethod) UsesGateway() bool {
	return m == PaymentGatewayRedirect || m == PaymentGatewayInline
}

// Location - точка на карте
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Order представляет заказ на доставку.
// ID генерируется до вставки и передаётся в шлюз как tx_ref.
type Order struct {
	ID            string        `json:"id"`
	UserID        int64         `json:"user_id"`
	Phone         string        `json:"phone"`
	Pickup        Location      `json:"pickup"`
	Dropoff       Location      `json:"dropoff"`
	Item          string        `json:"item,omitempty"`
	Quantity      int           `json:"quantity"`
	Price         float64       `json:"price"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        OrderStatus   `json:"status"`
	CheckoutURL   string        `json:"checkout_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
