package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/token"
)

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, token.ErrLedgerNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrUnauthorized),
		errors.Is(err, token.ErrTransfersDisabled),
		errors.Is(err, token.ErrCloningDisabled):
		return http.StatusForbidden
	case errors.Is(err, token.ErrControllerRejected),
		errors.Is(err, token.ErrCloneNotActive),
		errors.Is(err, token.ErrStaleBlock),
		errors.Is(err, token.ErrLedgerExists):
		return http.StatusConflict
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidForkPoint):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the {"error", "code"} body for err. Internal errors are
// logged and their detail withheld.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": token.Code(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
