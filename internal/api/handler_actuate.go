package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/actuator"
)

type actuateRequest struct {
	IPAddress   string `json:"ipAddress" binding:"required"`
	LockChannel string `json:"lockChannel"`
	LEDChannel  string `json:"ledChannel" binding:"required"`
	FinalState  string `json:"finalState" binding:"required"`
	SkipLock    bool   `json:"skipLock"`
}

// PostActuate handles POST /actuate: trigger a raw actuation sequence
// against a controller. The sequence runs in the background; the request
// is acknowledged as soon as it is validated.
func (h *Handler) PostActuate(c *gin.Context) {
	var req actuateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	final, err := actuator.ParseFinalState(req.FinalState)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.orchestrator.RunBackground(actuator.Sequence{
		IPAddress:   req.IPAddress,
		LockChannel: req.LockChannel,
		LEDChannel:  req.LEDChannel,
		FinalState:  final,
		SkipLock:    req.SkipLock,
	}, nil)

	c.JSON(http.StatusAccepted, gin.H{"status": "actuation started"})
}
