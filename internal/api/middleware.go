package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/observability/metrics"
)

// CORS allows any origin to POST JSON. Pre-flight requests get 204.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}

// RequestLogger logs each request with zerolog and records its latency.
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	logger := logging.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		m.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())

		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("clientIp", c.ClientIP()).
			Msg("request")
	}
}

// RateLimit limits requests per client IP. rate uses the limiter format,
// e.g. "60-M".
func RateLimit(rate string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(memory.NewStore(), r)
	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			abortWithError(c, http.StatusTooManyRequests, "Too many requests")
		}),
	), nil
}

// MaxBodySize caps request bodies at limit bytes.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// Helper to return a plain text error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.Abort()
	c.String(code, message)
}
