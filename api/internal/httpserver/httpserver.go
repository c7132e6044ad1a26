package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"step-tutor/api/internal/handle"
)

const (
	RouteMe      = "/api/me"
	RouteRunStep = "/api/run-step"

	headerRequestID = "X-Request-Id"
)

type RouterDeps struct {
	Handle         *handle.Handle
	Health         *handle.HealthHandler
	AllowedOrigins []string
}

// NewRouter assembles the gin engine. The API routes accept every method so
// the handlers can answer 405 themselves. gin's Any covers only the standard
// methods; the rest reach the handlers through NoRoute.
func NewRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(gin.CustomRecovery(recoverJSON))
	r.Use(AccessLog())
	r.Use(cors.New(corsConfig(dep.AllowedOrigins)))

	if dep.Health != nil {
		dep.Health.RegisterRoutes(r)
	}
	r.Any(RouteMe, dep.Handle.Me)
	r.Any(RouteRunStep, dep.Handle.RunStep)
	r.NoRoute(func(c *gin.Context) {
		switch c.Request.URL.Path {
		case RouteMe:
			dep.Handle.Me(c)
		case RouteRunStep:
			dep.Handle.RunStep(c)
		}
	})
	return r
}

func recoverJSON(c *gin.Context, recovered any) {
	log.WithFields(log.Fields{
		"request_id": c.GetString(handle.RequestIDKey),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"panic":      fmt.Sprint(recovered),
	}).Error("http.panic")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": handle.MsgInternal})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", headerRequestID},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// RequestID keeps an inbound X-Request-Id or mints a new one, and echoes it
// back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(handle.RequestIDKey, rid)
		c.Writer.Header().Set(headerRequestID, rid)
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"request_id": c.GetString(handle.RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("http.request")
	}
}

// Serve runs h on addr until ctx is done, then drains in-flight requests.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http.listen")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
