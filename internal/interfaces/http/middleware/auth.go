// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// RequireLogin guards pages that need an authenticated browsing context.
// Anonymous requests are sent to the login page with the requested path as
// the return target.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sf := Storefront(c)
		if sf.Authenticated(c.Request.Context()) {
			c.Next()
			return
		}

		target := "/login?return=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}

// RequireSession guards API routes that need an authenticated browsing
// context
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Storefront(c).Authenticated(c.Request.Context()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Login required",
			})
			return
		}
		c.Next()
	}
}
