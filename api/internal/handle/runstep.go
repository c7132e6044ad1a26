package handle

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/llm"
	"step-tutor/api/internal/tutor"
)

// RunStep handles POST /api/run-step. Checks run in a fixed order: method,
// plan, body fields, then exactly one upstream call.
func (h *Handle) RunStep(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		writeError(c, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}

	user, err := h.identity.Resolve(c.Request)
	if err != nil {
		entry(c).WithError(err).Error("step.resolve.failed")
		writeError(c, http.StatusInternalServerError, MsgInternal)
		return
	}
	if !user.HasPlan(identity.PlanMastery) {
		writeError(c, http.StatusForbidden, MsgPlanRequired)
		return
	}

	// A body that is not a JSON object counts as missing fields.
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		entry(c).WithError(err).Debug("step.body.invalid")
		writeError(c, http.StatusBadRequest, MsgMissingFields)
		return
	}
	req := tutor.DecodeStepRequest(body)

	start := time.Now()
	out, err := h.svc.RunStep(c.Request.Context(), user, req)
	fields := log.Fields{
		"subject":     req.Subject,
		"topic":       req.Topic,
		"step_number": req.StepNumber,
		"latency_ms":  time.Since(start).Milliseconds(),
	}

	var ue *llm.UpstreamError
	switch {
	case err == nil:
		entry(c).WithFields(fields).Info("step.run.success")
		c.JSON(http.StatusOK, out)
	case errors.Is(err, tutor.ErrPlanRequired):
		writeError(c, http.StatusForbidden, MsgPlanRequired)
	case errors.Is(err, tutor.ErrMissingFields):
		writeError(c, http.StatusBadRequest, MsgMissingFields)
	case errors.As(err, &ue):
		fields["upstream_status"] = ue.StatusCode
		fields["upstream_body"] = ue.Body
		entry(c).WithFields(fields).Error("step.run.upstream_error")
		writeError(c, http.StatusInternalServerError, MsgUpstreamFailed)
	default:
		entry(c).WithFields(fields).WithError(err).Error("step.run.failed")
		writeError(c, http.StatusInternalServerError, MsgInternal)
	}
}
