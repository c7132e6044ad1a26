package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Engine  string `json:"engine"`
	Model   string `json:"model"`
	DB      string `json:"db,omitempty"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	service string
	version string
	engine  string
	model   string
	db      Pinger
}

// NewHealthHandler builds the liveness handler. db may be nil when the
// journal is disabled.
func NewHealthHandler(service, version, engine, model string, db Pinger) *HealthHandler {
	return &HealthHandler{
		service: service,
		version: version,
		engine:  engine,
		model:   model,
		db:      db,
	}
}

// HealthCheck always answers 200; a down journal database is reported but
// does not make the service unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	dbStatus := ""
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			dbStatus = "down"
		} else {
			dbStatus = "up"
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.service,
		Version: h.version,
		Engine:  h.engine,
		Model:   h.model,
		DB:      dbStatus,
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
