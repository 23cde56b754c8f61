package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/model"
)

type lockerRequest struct {
	Number     string  `json:"number" binding:"required"`
	DeviceName *string `json:"deviceName"`
	IPAddress  *string `json:"ipAddress"`
	Locks      *string `json:"locks"`
	LEDs       *string `json:"leds"`
}

// GetLockers handles GET /lockers.
func (h *Handler) GetLockers(c *gin.Context) {
	lockers, err := h.store.ListLockers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lockers)
}

// PostLocker handles POST /lockers.
func (h *Handler) PostLocker(c *gin.Context) {
	var req lockerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	locker := model.Locker{
		Number:     req.Number,
		DeviceName: req.DeviceName,
		IPAddress:  req.IPAddress,
		Locks:      req.Locks,
		LEDs:       req.LEDs,
	}
	if err := h.store.RegisterLocker(c.Request.Context(), &locker); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, locker)
}

// PutLocker handles PUT /lockers/:id.
func (h *Handler) PutLocker(c *gin.Context) {
	var req lockerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	locker := model.Locker{
		ID:         c.Param("id"),
		Number:     req.Number,
		DeviceName: req.DeviceName,
		IPAddress:  req.IPAddress,
		Locks:      req.Locks,
		LEDs:       req.LEDs,
	}
	if err := h.store.UpdateLocker(c.Request.Context(), &locker); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, locker)
}

// DeleteLocker handles DELETE /lockers/:id. Ledger entries for the
// locker's number are not cascaded.
func (h *Handler) DeleteLocker(c *gin.Context) {
	if err := h.store.DeleteLocker(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
