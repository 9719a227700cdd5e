// Package gateway - клиент REST API платёжного шлюза (Chapa-совместимый):
// инициализация платежа и проверка транзакции по tx_ref.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/tolo-delivery/internal/lib/metrics"
)

const (
	initializePath = "/v1/transaction/initialize"
	verifyPath     = "/v1/transaction/verify/"

	statusSuccess = "success"
)

// ErrGateway - шлюз ответил ошибкой или вернул неожиданный ответ
var ErrGateway = errors.New("payment gateway error")

// Config настройки клиента
type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration
}

// Client - HTTP-клиент шлюза. Повторов нет: ошибка сразу возвращается вызывающему.
type Client struct {
	log     *slog.Logger
	baseURL string
	cfg     Config
	http    *http.Client
	metrics *metrics.Metrics
}

func New(cfg Config, log *slog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		log:     log.With(slog.String("component", "gateway")),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// Customer - данные покупателя, которые требует шлюз
type Customer struct {
	Phone     string
	Email     string
	FirstName string
	LastName  string
}

// InitializeRequest - параметры нового платежа. Reference равен ID заказа.
type InitializeRequest struct {
	Amount    float64
	Currency  string
	Reference string
	Customer  Customer
}

// Checkout - ссылка на страницу оплаты
type Checkout struct {
	CheckoutURL string
}

// Verification - авторитетный статус транзакции
type Verification struct {
	Reference string
	Status    string
	Amount    float64
	Currency  string
}

// Succeeded сообщает, подтвердил ли шлюз оплату
func (v *Verification) Succeeded() bool {
	return strings.EqualFold(v.Status, statusSuccess)
}

type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializePayload struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	TxRef       string `json:"tx_ref"`
	CallbackURL string `json:"callback_url,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
}

// Initialize создаёт платёж и возвращает ссылку на оплату
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	payload := initializePayload{
		Amount:      strconv.FormatFloat(req.Amount, 'f', 2, 64),
		Currency:    req.Currency,
		Email:       req.Customer.Email,
		FirstName:   req.Customer.FirstName,
		LastName:    req.Customer.LastName,
		PhoneNumber: req.Customer.Phone,
		TxRef:       req.Reference,
		CallbackURL: c.cfg.CallbackURL,
		ReturnURL:   c.cfg.ReturnURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, initializePath, "initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode initialize data: %v", ErrGateway, err)
	}
	if data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: empty checkout url", ErrGateway)
	}
	return &Checkout{CheckoutURL: data.CheckoutURL}, nil
}

// Verify запрашивает статус транзакции по reference
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	env, err := c.do(ctx, http.MethodGet, verifyPath+url.PathEscape(reference), "verify", nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status    string          `json:"status"`
		Amount    json.RawMessage `json:"amount"`
		Currency  string          `json:"currency"`
		TxRef     string          `json:"tx_ref"`
		Reference string          `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode verify data: %v", ErrGateway, err)
	}

	amount, err := parseAmount(data.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	ref := data.TxRef
	if ref == "" {
		ref = reference
	}
	return &Verification{
		Reference: ref,
		Status:    strings.ToLower(strings.TrimSpace(data.Status)),
		Amount:    amount,
		Currency:  data.Currency,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		return nil, fmt.Errorf("%w: request %s: %v", ErrGateway, endpoint, err)
	}
	defer res.Body.Close()
	c.observe(endpoint, strconv.Itoa(res.StatusCode), start)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if res.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil {
			if m := messageText(env.Message); m != "" {
				msg = m
			}
		}
		c.log.Warn("gateway rejected request",
			slog.String("endpoint", endpoint),
			slog.Int("status", res.StatusCode),
			slog.String("message", msg),
		)
		return nil, fmt.Errorf("%w: %s: status=%d: %s", ErrGateway, endpoint, res.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGateway, decodeErr)
	}
	if !strings.EqualFold(env.Status, statusSuccess) {
		return nil, fmt.Errorf("%w: %s: %s", ErrGateway, endpoint, messageText(env.Message))
	}
	return &env, nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.GatewayRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.GatewayLatency.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}

// message бывает строкой или объектом с ошибками валидации
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// amount приходит то числом, то строкой
func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid amount %s", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return f, nil
}
