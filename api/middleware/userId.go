package middleware

import (
	"github.com/gin-gonic/gin"
)

// UserIdHeaders are checked in order; the first non-empty value wins.
var UserIdHeaders = []string{"X-MAILCORE-USER-ID", "X-USER-ID"}

func UserIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := ""
		for _, header := range UserIdHeaders {
			if value := c.GetHeader(header); value != "" {
				userId = value
				break
			}
		}

		// Store in gin context for later use
		c.Set("UserId", userId)
		c.Next()
	}
}
