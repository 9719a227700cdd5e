package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/tolo-delivery/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/tolo-delivery/internal/lib/api/response"
	"github.com/linemk/tolo-delivery/internal/service"
)

// CredentialsRequest - телефон и пароль для регистрации и входа
type CredentialsRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

// AuthResponse представляет структуру ответа с JWT-токеном
type AuthResponse struct {
	Token  string `json:"token"`
	Phone  string `json:"phone"`
	UserID int64  `json:"user_id,omitempty"`
}

// TelegramLoginRequest - сырой initData из Telegram.WebApp.initData
type TelegramLoginRequest struct {
	InitData string `json:"init_data"`
}

var validate = validator.New()

// RegisterHandler обрабатывает POST /api/register
func RegisterHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RegisterHandler"
		logger := log.With(slog.String("op", op))

		req, ok := decodeCredentials(w, r, logger)
		if !ok {
			return
		}

		user, err := authService.Register(r.Context(), req.Phone, req.Password)
		if err != nil {
			logger.Warn("registration failed", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		resp := RegisterResponse{Message: "user registered", UserID: user.ID}
		if err := response.JSON(w, http.StatusCreated, resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// LoginHandler – вход по телефону и паролю, возвращает JWT-токен
func LoginHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LoginHandler"
		logger := log.With(slog.String("op", op))

		req, ok := decodeCredentials(w, r, logger)
		if !ok {
			return
		}

		token, user, err := authService.Login(r.Context(), req.Phone, req.Password)
		if err != nil {
			logger.Warn("login failed", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		resp := AuthResponse{Token: token, Phone: user.Phone}
		if err := response.JSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// TelegramLoginHandler – вход из Mini App. initData берётся из тела или из заголовка.
func TelegramLoginHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.TelegramLoginHandler"
		logger := log.With(slog.String("op", op))

		var req TelegramLoginRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				logger.Error("invalid request: decoding error", slog.Any("error", err))
				response.BadRequest(w, logger, "invalid request")
				return
			}
		}
		if req.InitData == "" {
			req.InitData = r.Header.Get(jwtmiddleware.InitDataHeader)
		}
		if req.InitData == "" {
			response.BadRequest(w, logger, "init_data is required")
			return
		}

		token, user, err := authService.LoginTelegram(r.Context(), req.InitData)
		if err != nil {
			logger.Warn("telegram login failed", slog.Any("error", err))
			response.Error(w, logger, err)
			return
		}

		resp := AuthResponse{Token: token, Phone: user.Phone, UserID: user.ID}
		if err := response.JSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("invalid request: decoding error", slog.Any("error", err))
		response.BadRequest(w, logger, "invalid request")
		return nil, false
	}

	// Валидация структуры запроса с использованием validator
	if err := validate.Struct(req); err != nil {
		logger.Warn("invalid request: validation error", slog.Any("error", err))
		response.ValidationError(w, logger, err)
		return nil, false
	}
	return &req, true
}
