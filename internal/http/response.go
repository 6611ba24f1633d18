package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zerotwo/ine-collector/internal/catalog"
	"github.com/zerotwo/ine-collector/internal/collector"
	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/ine"
)

const sourceName = "ine"

func respondOK(c *gin.Context, payload gin.H) {
	payload["status"] = "success"
	payload["source"] = sourceName
	c.JSON(http.StatusOK, payload)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
		"source":  sourceName,
	})
}

func respondErr(c *gin.Context, err error) {
	respondError(c, statusFor(err), err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, db.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, collector.ErrRunInProgress):
		return http.StatusConflict
	case ine.IsTimeout(err):
		return http.StatusGatewayTimeout
	case ine.IsKind(err, ine.KindNetwork):
		return http.StatusBadGateway
	case ine.IsKind(err, ine.KindDecode), ine.IsKind(err, ine.KindShape):
		return http.StatusUnprocessableEntity
	case db.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
