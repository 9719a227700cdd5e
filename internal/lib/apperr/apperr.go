package apperr

import (
	"errors"
	"net/http"
)

// Kind - класс ошибки, по которому транспортный слой выбирает HTTP-статус
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindNotFound
	KindUpstream
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// HTTPStatus возвращает статус ответа для данного класса ошибки
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error - ошибка предметной области с классом и машинным кодом.
// Значения, объявленные ниже, сравниваются через errors.Is.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// New создаёт ошибку заданного класса
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// KindOf ищет в цепочке первую *Error и возвращает её класс.
// Для ошибок без класса возвращается KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As возвращает первую *Error из цепочки
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

var (
	// initData
	ErrMissingSignature  = New(KindAuth, "missing_signature", "init data has no hash")
	ErrInvalidSignature  = New(KindAuth, "invalid_signature", "init data signature mismatch")
	ErrInitDataExpired   = New(KindAuth, "init_data_expired", "init data is too old")
	ErrMalformedInitData = New(KindValidation, "malformed_init_data", "malformed init data")
	ErrNoBotToken        = New(KindConfiguration, "no_bot_token", "telegram bot token is not configured")

	// пользователи и сессии
	ErrInvalidCredentials       = New(KindAuth, "invalid_credentials", "invalid credentials")
	ErrPhoneAlreadyRegistered   = New(KindConflict, "phone_already_registered", "phone already registered")
	ErrTokenMissing             = New(KindAuth, "token_missing", "token missing")
	ErrTokenInvalid             = New(KindAuth, "token_invalid", "invalid token")
	ErrTokenExpired             = New(KindAuth, "token_expired", "token expired")
	ErrUserNotFound             = New(KindAuth, "user_not_found", "user not found")
	ErrNoTelegramUser           = New(KindValidation, "no_telegram_user", "init data carries no user object")
	ErrTelegramIdentityConflict = New(KindConflict, "telegram_identity_conflict", "telegram account conflicts with an existing user")
	ErrNoSecret                 = New(KindConfiguration, "no_secret", "server secret is not configured")

	// заказы и оплата
	ErrMissingReference  = New(KindValidation, "missing_reference", "transaction reference is required")
	ErrOrderNotFound     = New(KindNotFound, "order_not_found", "order not found")
	ErrGatewayInitFailed = New(KindUpstream, "gateway_init_failed", "payment gateway rejected initialization")
	ErrGatewayVerify     = New(KindUpstream, "gateway_verify_failed", "payment gateway verification failed")
	ErrInvalidOrder      = New(KindValidation, "invalid_order", "pickup, dropoff and a valid price are required")

	// цена
	ErrInvalidCoordinates = New(KindValidation, "invalid_coordinates", "invalid coordinates")
	ErrDistanceFailed     = New(KindUpstream, "distance_failed", "failed to compute distance")
)
