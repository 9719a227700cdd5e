package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
)

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON пишет значение с заданным статусом
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Error выбирает статус по классу ошибки. Текст внутренних ошибок клиенту не отдаётся.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	body := ErrorResponse{Error: "internal server error"}

	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal && e.Kind != apperr.KindConfiguration {
		status = e.Kind.HTTPStatus()
		body = ErrorResponse{Error: e.Msg, Details: e.Code}
	}

	if err := JSON(w, status, body); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}

// BadRequest - 400 с произвольным текстом
func BadRequest(w http.ResponseWriter, log *slog.Logger, msg string) {
	if err := JSON(w, http.StatusBadRequest, ErrorResponse{Error: msg}); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}

// ValidationError перечисляет поля, не прошедшие проверку validator
func ValidationError(w http.ResponseWriter, log *slog.Logger, err error) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		BadRequest(w, log, "validation error")
		return
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", fe.Field()))
		}
	}

	body := ErrorResponse{Error: "validation error", Details: strings.Join(msgs, ", ")}
	if err := JSON(w, http.StatusBadRequest, body); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}
