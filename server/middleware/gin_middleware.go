package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// GinRequestIDMiddleware добавляет уникальный request ID к каждому запросу в Gin
func GinRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Генерируем или получаем request ID из заголовка
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		// Добавляем request ID в контекст Gin
		c.Set("request_id", reqID)

		// Добавляем request ID в контекст HTTP
		ctx := SetRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(ctx)

		// Добавляем request ID в заголовок ответа
		c.Header("X-Request-ID", reqID)

		c.Next()
	}
}

// GetRequestIDFromGin извлекает request ID из Gin context
func GetRequestIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}

	reqID, exists := c.Get("request_id")
	if !exists {
		return ""
	}

	if id, ok := reqID.(string); ok {
		return id
	}

	return ""
}

// GinCORSMiddleware добавляет CORS заголовки в Gin
func GinCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// GinGzipMiddleware включает сжатие ответов
func GinGzipMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.BestSpeed)
}

// GinRateLimitMiddleware ограничивает частоту запросов на процесс
func GinRateLimitMiddleware(perSecond, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			reqID := GetRequestIDFromGin(c)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      true,
				"message":    "Слишком много запросов, повторите позже",
				"request_id": reqID,
			})
			return
		}
		c.Next()
	}
}

// GinLoggerMiddleware логирует запросы через slog
func GinLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		reqID := GetRequestIDFromGin(c)

		if raw != "" {
			path = path + "?" + raw
		}

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
			"request_id", reqID,
		}
		if err := c.Errors.Last(); err != nil {
			attrs = append(attrs, "error", err.Error())
		}

		switch {
		case statusCode >= 500:
			logger.Error("HTTP request", attrs...)
		case statusCode >= 400:
			logger.Warn("HTTP request", attrs...)
		default:
			logger.Info("HTTP request", attrs...)
		}
	}
}

// GinRecoveryMiddleware обрабатывает паники в Gin
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				reqID := GetRequestIDFromGin(c)
				stackTrace := debug.Stack()

				slog.Error("[GIN] Panic recovered",
					"panic", err,
					"stack", string(stackTrace),
					"request_id", reqID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":      true,
					"message":    "Internal server error",
					"request_id": reqID,
				})

				c.Abort()
			}
		}()

		c.Next()
	}
}
