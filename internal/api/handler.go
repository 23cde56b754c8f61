package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"locker-kiosk-backend/internal/actuator"
	"locker-kiosk-backend/internal/notify"
	"locker-kiosk-backend/internal/resolver"
	"locker-kiosk-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	orchestrator *actuator.Orchestrator
	sweep        *actuator.Sweep
	pool         *notify.WorkerPool
	vapidPublic  string
	adminOTPTTL  time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, orch *actuator.Orchestrator, sweep *actuator.Sweep, pool *notify.WorkerPool, vapidPublic string, adminOTPTTL time.Duration) *Handler {
	return &Handler{
		store:        s,
		orchestrator: orch,
		sweep:        sweep,
		pool:         pool,
		vapidPublic:  vapidPublic,
		adminOTPTTL:  adminOTPTTL,
	}
}

// abortWithError maps store and resolver errors to HTTP statuses and
// writes the standard error envelope.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrUnknownLocker), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, resolver.ErrLockerOccupied),
		errors.Is(err, store.ErrDuplicateLockerNumber),
		errors.Is(err, store.ErrAdminExists):
		status = http.StatusConflict
	case errors.Is(err, resolver.ErrInvalidCredentials), errors.Is(err, store.ErrOTPExpired):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
