package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"locker-kiosk-backend/internal/actuator"
	"locker-kiosk-backend/internal/model"
)

type submissionRequest struct {
	SenderEmail    string `json:"senderEmail" binding:"required,email"`
	RecipientEmail string `json:"recipientEmail" binding:"required,email"`
	Note           string `json:"note"`
	LockerNumber   string `json:"lockerNumber" binding:"required"`
	DocumentType   string `json:"documentType"`
}

// PostSubmission handles POST /submissions: run the occupancy check,
// append the claim check, then kick off physical actuation and the
// recipient notification in the background. Success is reported as soon
// as the ledger commit is durable.
func (h *Handler) PostSubmission(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cc := model.ClaimCheck{
		SenderEmail:    req.SenderEmail,
		RecipientEmail: req.RecipientEmail,
		Note:           req.Note,
		LockerNumber:   req.LockerNumber,
		DocumentType:   req.DocumentType,
	}
	skipActuation, err := h.store.Submit(c.Request.Context(), &cc)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if !skipActuation {
		h.actuateLocker(c, cc.LockerNumber, actuator.FinalOn, false, nil)
	}
	h.pool.Dispatch(cc.ID)

	c.JSON(http.StatusCreated, gin.H{
		"id":            cc.ID,
		"otp":           cc.OTP,
		"skipActuation": skipActuation,
	})
}

// GetSubmissions handles GET /submissions.
func (h *Handler) GetSubmissions(c *gin.Context) {
	rows, err := h.store.ListSubmissions(c.Request.Context(), c.Query("sort"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ReceiveSubmission handles PUT /submissions/:id/receive, the
// administrative override that stamps a single row as received.
func (h *Handler) ReceiveSubmission(c *gin.Context) {
	if err := h.store.MarkReceivedByID(c.Request.Context(), c.Param("id"), time.Now().UTC()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// actuateLocker resolves the locker's device snapshot and runs the blink
// sequence in the background. Missing device wiring is not an error: a
// locker without an address or LED is simply not actuated. The after hook
// always runs off the request goroutine; it may make device calls of its
// own and must never delay the response.
func (h *Handler) actuateLocker(c *gin.Context, lockerNumber string, final actuator.FinalState, skipLock bool, after func()) {
	locker, err := h.store.GetLockerByNumber(c.Request.Context(), lockerNumber)
	if err != nil || locker.IPAddress == nil || locker.LEDs == nil {
		if after != nil {
			go after()
		}
		return
	}
	seq := actuator.Sequence{
		IPAddress:  *locker.IPAddress,
		LEDChannel: *locker.LEDs,
		FinalState: final,
		SkipLock:   skipLock,
	}
	if locker.Locks != nil {
		seq.LockChannel = *locker.Locks
	}
	h.orchestrator.RunBackground(seq, after)
}
