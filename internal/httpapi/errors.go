package httpapi

import (
	"net/http"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.KindAccountState:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports the error kind and its reason. Internal errors are
// logged and never echoed back.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": string(apperr.KindInternal), "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": string(kind), "message": apperr.ReasonOf(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": string(apperr.KindValidation), "message": err.Error()})
}
