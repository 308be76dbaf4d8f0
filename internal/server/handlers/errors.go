package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

var statusByCode = map[string]int{
	models.CodeNotFound:            http.StatusNotFound,
	models.CodeValidation:          http.StatusBadRequest,
	models.CodeSessionConflict:     http.StatusConflict,
	models.CodeInvalidTransition:   http.StatusConflict,
	models.CodeOperationInProgress: http.StatusConflict,
	models.CodeSessionHasReadings:  http.StatusConflict,
	models.CodeSyncFailure:         http.StatusBadGateway,
	models.CodeOffline:             http.StatusServiceUnavailable,
}

// respondError writes the JSON error body for err. Unclassified errors are
// logged and reported without their detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := models.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.CodeInternal, "message": "internal server error"})
		return
	}

	body := gin.H{"error": code, "message": err.Error()}

	var syncErr *models.SyncFailure
	if errors.As(err, &syncErr) {
		body["reason"] = syncErr.Reason
		body["raw_detail"] = syncErr.RawDetail
		logger.Warn("registry sync failed", zap.String("reason", syncErr.Reason), zap.String("raw_detail", syncErr.RawDetail))
	}

	var te *models.TransitionError
	if errors.As(err, &te) {
		body["from"] = te.From
		body["operation"] = te.Op
	}

	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": models.CodeValidation, "message": "invalid request body"})
}
