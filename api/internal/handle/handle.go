package handle

import (
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/tutor"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgPlanRequired     = tutor.MsgPlanRequired
	MsgMissingFields    = tutor.MsgMissingFields
	MsgUpstreamFailed   = tutor.MsgUpstreamFailed
	MsgInternal         = tutor.MsgInternal
)

type Handle struct {
	svc      *tutor.Service
	identity identity.Resolver
}

func New(svc *tutor.Service, resolver identity.Resolver) *Handle {
	return &Handle{
		svc:      svc,
		identity: resolver,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorBody{Error: msg})
}

func entry(c *gin.Context) *log.Entry {
	return log.WithFields(log.Fields{
		"request_id": c.GetString(RequestIDKey),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	})
}
