package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

// HeaderUserID names the caller. Authentication happens at the gateway.
const HeaderUserID = "X-User-ID"

// UserContext records the calling user for movement and order attribution.
// Requests without the header act as the system user.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader(HeaderUserID); uid != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: uid, Source: "http"})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
