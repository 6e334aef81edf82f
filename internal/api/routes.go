package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alcyxob/present-coach/internal/observability/metrics"
	"alcyxob/present-coach/internal/service"
)

// maxRequestBody caps JSON bodies; payment events are the largest.
const maxRequestBody = 1 << 20

// RouteOptions holds the optional parts of the router.
type RouteOptions struct {
	// RateLimit is a limiter rate such as "120-M". Empty disables limiting.
	RateLimit string
	Metrics   *metrics.Metrics
}

func SetupRoutes(router *gin.Engine, submissionService service.SubmissionService, opts RouteOptions) error {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	router.Use(gin.Recovery(), RequestLogger(m), CORS())

	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submissionHandler := NewSubmissionHandler(submissionService)

	public := router.Group("")
	public.Use(MaxBodySize(maxRequestBody))
	if opts.RateLimit != "" {
		limit, err := RateLimit(opts.RateLimit)
		if err != nil {
			return err
		}
		public.Use(limit)
	}
	{
		routes := map[string]gin.HandlerFunc{
			"/createSubmission":     submissionHandler.CreateSubmission,
			"/paddleWebhook":        submissionHandler.PaymentWebhook,
			"/patchSubmissionEmail": submissionHandler.PatchSubmissionEmail,
			"/getUploadUrls":        submissionHandler.GetUploadURLs,
		}
		for path, handler := range routes {
			public.POST(path, handler)
			// pre-flight without an Origin header never reaches the CORS handler
			public.OPTIONS(path, noContent)
		}
	}
	return nil
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
