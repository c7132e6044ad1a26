package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Me reports the current identity. Any method is accepted and the body is
// ignored.
func (h *Handle) Me(c *gin.Context) {
	user, err := h.identity.Resolve(c.Request)
	if err != nil {
		entry(c).WithError(err).Error("me.resolve.failed")
		writeError(c, http.StatusInternalServerError, MsgInternal)
		return
	}
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"loggedIn": false})
		return
	}
	c.JSON(http.StatusOK, user)
}
