// internal/interfaces/http/middleware/context.go
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/bookstore-storefront/internal/app"
)

const (
	VisitorCookie = "visitor_id"
	ContextCookie = "browsing_context"

	storefrontKey = "storefront"
)

// CookieOptions controls the identity cookies
type CookieOptions struct {
	VisitorTTL time.Duration
	Secure     bool
}

// BrowsingContext resolves the visitor and browsing context of the request
// from its cookies, issuing fresh IDs when missing, and attaches the
// context's storefront. The visitor cookie is long lived; the context
// cookie lasts for the browser session.
func BrowsingContext(registry *app.Registry, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := readID(c, VisitorCookie)
		if visitorID == "" {
			visitorID = uuid.NewString()
			setCookie(c, VisitorCookie, visitorID, int(opts.VisitorTTL/time.Second), opts.Secure)
		}

		contextID := readID(c, ContextCookie)
		if contextID == "" {
			contextID = uuid.NewString()
			setCookie(c, ContextCookie, contextID, 0, opts.Secure)
		}

		c.Set(storefrontKey, registry.Get(c.Request.Context(), contextID, visitorID))
		c.Next()
	}
}

// Storefront returns the storefront attached by BrowsingContext
func Storefront(c *gin.Context) *app.Storefront {
	sf, _ := c.MustGet(storefrontKey).(*app.Storefront)
	return sf
}

// readID returns the cookie value if it is a well-formed ID
func readID(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(value); err != nil {
		return ""
	}
	return value
}

func setCookie(c *gin.Context, name, value string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", secure, true)
}
