package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/otp"
	"locker-kiosk-backend/internal/resolver"
)

type adminCredentialRequest struct {
	Email string `json:"email" binding:"required,email"`
	PIN   string `json:"pin" binding:"required"`
}

// PostAdminBootstrap handles POST /admin/credentials: direct commit of
// the singleton credential, allowed only while no admin exists yet.
func (h *Handler) PostAdminBootstrap(c *gin.Context) {
	var req adminCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.store.BootstrapAdmin(c.Request.Context(), req.Email, req.PIN)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": admin.ID, "email": admin.Email})
}

// PostAdminPropose handles POST /admin/credentials/propose: stage a
// credential change behind a short-lived passcode. The passcode itself is
// delivered out of band (mail delivery is not this backend's concern) and
// is never echoed in the response.
func (h *Handler) PostAdminPropose(c *gin.Context) {
	var req adminCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, expires, err := h.store.ProposeAdminChange(c.Request.Context(), req.Email, req.PIN, h.adminOTPTTL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"otpExpires": expires})
}

type adminVerifyRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// PostAdminVerify handles POST /admin/credentials/verify: commit the
// staged change when the passcode matches and has not expired.
func (h *Handler) PostAdminVerify(c *gin.Context) {
	var req adminVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !otp.Valid(req.OTP) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": resolver.ErrInvalidCredentials.Error()})
		return
	}

	if err := h.store.VerifyAdminChange(c.Request.Context(), req.OTP); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "credentials updated"})
}
