package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
)

// writeError maps a bherr.Kind (or an opaque error) to the HTTP status
// spec.md §7/§9 calls for and writes the JSON error body.
func writeError(c *gin.Context, err error) {
	var be *bherr.Error
	if errors.As(err, &be) {
		c.JSON(statusFor(be.Kind), gin.H{"error": string(be.Kind), "message": be.Message})
		return
	}

	var status *bherr.HTTPStatus
	if errors.As(err, &status) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_http_status", "message": err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}

func statusFor(kind bherr.Kind) int {
	switch kind {
	case bherr.KindEstimateUnavail:
		return http.StatusServiceUnavailable
	case bherr.KindRepositoryMissing:
		return http.StatusNotFound
	case bherr.KindNoConsensus, bherr.KindReconcileMismatch:
		return http.StatusConflict
	case bherr.KindSchemaMismatch, bherr.KindTransportFailure:
		return http.StatusBadGateway
	case bherr.KindInvariantViolation:
		return http.StatusBadRequest
	case bherr.KindShutdownCancel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
