package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/utils"
)

// CustomContextMiddleware carries the app source and path ids into the request context
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
