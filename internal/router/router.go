// Package router assembles the HTTP surface: middleware chain, route
// groups and operational endpoints.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medicore/hospital-api/internal/handler"
	appointmenthandler "github.com/medicore/hospital-api/internal/handler/appointment"
	authhandler "github.com/medicore/hospital-api/internal/handler/auth"
	billinghandler "github.com/medicore/hospital-api/internal/handler/billing"
	"github.com/medicore/hospital-api/internal/middleware"
	"github.com/medicore/hospital-api/pkg/logger"
)

type Options struct {
	Logger      *logger.Logger
	DB          *sqlx.DB
	Auth        *authhandler.Handler
	Billing     *billinghandler.Handler
	Appointment *appointmenthandler.Handler
	RateLimit   *middleware.RateLimiter
}

// New builds the engine with the full middleware chain and mounts all
// route groups under /api/v1.
func New(opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit.RateLimit())
	}
	r.Use(httpMetrics())

	handler.NewHealthHandler(opts.DB).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	opts.Auth.RegisterRoutes(api)
	opts.Billing.RegisterRoutes(api)
	opts.Appointment.RegisterRoutes(api)

	return r
}

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hospital",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hospital",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and path",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func httpMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, statusClass(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
