package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/actuator"
	"locker-kiosk-backend/internal/otp"
	"locker-kiosk-backend/internal/resolver"
)

type retrieveRequest struct {
	LockerNumber string `json:"lockerNumber" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
}

// PostRetrieve handles POST /retrieve: a recipient enters a passcode at
// the kiosk to claim every document queued for them in the locker. The
// lock pulse and LED sequence run after the ledger commit, followed by a
// reconciliation sweep to settle the LED to the now-empty state.
func (h *Handler) PostRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !otp.Valid(req.OTP) {
		// Malformed passcodes get the same response as wrong ones.
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": resolver.ErrInvalidCredentials.Error()})
		return
	}

	claimed, err := h.store.Claim(c.Request.Context(), req.LockerNumber, req.OTP)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sweep := h.sweep
	h.actuateLocker(c, req.LockerNumber, actuator.FinalOff, false, func() {
		sweep.SyncOnce(context.Background())
	})

	c.JSON(http.StatusOK, gin.H{"claimedCount": len(claimed)})
}
