package server

import (
	"net/http"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(opts Options) http.Handler {
	opts = opts.withDefaults()
	r := gin.New()

	r.Use(requestLogger(opts.Logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(string) bool { return true },
		AllowMethods:    []string{http.MethodGet},
		AllowHeaders:    []string{"Origin", "Accept", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	health := &HealthHandler{auth: opts.Auth, status: opts.Status, clock: opts.Clock, logger: opts.Logger}
	// Every path answers
	r.NoRoute(health.Handle)

	return r
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logging.Field{
			logging.F("method", c.Request.Method),
			logging.F("path", c.Request.URL.Path),
			logging.F("status", status),
			logging.F("latency", time.Since(start).String()),
			logging.F("clientIp", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}
