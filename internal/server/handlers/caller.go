package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

const (
	// HeaderUserID carries the caller identity.
	HeaderUserID = "X-User-ID"
	// HeaderUserRole carries the caller role; "admin" is privileged.
	HeaderUserRole = "X-User-Role"

	callerKey = "caller"
)

// Identity resolves the caller from the request headers. Authentication is
// performed upstream of this service.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKey, models.Caller{
			UserID:     strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Privileged: strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderUserRole)), "admin"),
		})
		c.Next()
	}
}

func callerFrom(c *gin.Context) models.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(models.Caller); ok {
			return caller
		}
	}
	return models.Caller{}
}
