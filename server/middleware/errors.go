package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "catalogserver/server/errors"
)

// HTTPError интерфейс для ошибок с HTTP статусом и сообщением
// Используется для избежания циклических зависимостей
type HTTPError interface {
	error
	StatusCode() int
	UserMessage() string
	GetContext() string
	Unwrap() error
}

// ErrorResponse структура ответа об ошибке
type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// AbortWithError обрабатывает ошибку сервиса и возвращает JSON ответ.
// Поддерживает HTTPError интерфейс для правильной обработки статус кодов и сообщений
func AbortWithError(c *gin.Context, err error) {
	reqID := GetRequestIDFromGin(c)

	var statusCode int
	var message string

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		statusCode = httpErr.StatusCode()
		message = httpErr.UserMessage()

		slog.Error("HTTP error",
			"error", httpErr.Unwrap(),
			"user_message", httpErr.UserMessage(),
			"context", httpErr.GetContext(),
			"status_code", statusCode,
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	} else {
		statusCode = http.StatusInternalServerError
		message = "Внутренняя ошибка сервера"

		slog.Error("HTTP error",
			"error", err,
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}

	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     message,
		Timestamp: time.Now().Format(time.RFC3339),
		RequestID: reqID,
	})
}

// AbortWithValidationError возвращает 400 с сообщением валидации
func AbortWithValidationError(c *gin.Context, message string, err error) {
	AbortWithError(c, apperrors.NewValidationError(message, err))
}
