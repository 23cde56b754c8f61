package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/model"
)

type detectionRequest struct {
	DeviceName string  `json:"deviceName" binding:"required"`
	IPAddress  string  `json:"ipAddress" binding:"required"`
	Locks      *string `json:"locks"`
	LEDs       *string `json:"leds"`
}

// GetDevices handles GET /devices: the full detection log, newest first.
func (h *Handler) GetDevices(c *gin.Context) {
	devices, err := h.store.ListDetectedDevices(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// PostDetection handles POST /devices/detections. Re-detections insert a
// new row; the log is append-only.
func (h *Handler) PostDetection(c *gin.Context) {
	var req detectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := model.Device{
		DeviceName: req.DeviceName,
		IPAddress:  req.IPAddress,
		Locks:      req.Locks,
		LEDs:       req.LEDs,
	}
	if err := h.store.RecordDetection(c.Request.Context(), &device); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}
