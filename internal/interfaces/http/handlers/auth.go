// internal/interfaces/http/handlers/auth.go
package handlers

import (
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/interfaces/http/middleware"
)

// AuthHandler handles the login round trip and session endpoints
type AuthHandler struct {
	config         *config.Config
	logger         logrus.FieldLogger
	trustedProxies []netip.Prefix
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		config:         cfg,
		logger:         logger,
		trustedProxies: parseProxies(cfg.Security.TrustedProxies, logger),
	}
}

// Login handles GET /login?return=
func (h *AuthHandler) Login(c *gin.Context) {
	sf := middleware.Storefront(c)

	redirect, err := sf.Session.Login(c.Request.Context(), c.Query("return"), h.requestOrigin(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to start login")
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirect.URL)
}

// Callback handles GET /callback. The browser always ends up somewhere:
// the merge destination on success, the home page on failure.
func (h *AuthHandler) Callback(c *gin.Context) {
	sf := middleware.Storefront(c)

	result, err := sf.HandleCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
	}

	c.Redirect(http.StatusFound, result.Destination)
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sf := middleware.Storefront(c)

	target, err := sf.Session.Logout(c.Request.Context(), h.postLogoutRedirect())
	if err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, target)
}

// Session handles GET /api/session
func (h *AuthHandler) Session(c *gin.Context) {
	sf := middleware.Storefront(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Session retrieved successfully",
		"data":    sf.SessionInfo(c.Request.Context()),
	})
}

// OrderConfirmation handles GET /order-confirmation
func (h *AuthHandler) OrderConfirmation(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order placed successfully",
		"data": gin.H{
			"orderId": orderID,
			"total":   c.Query("total"),
		},
	})
}

func (h *AuthHandler) postLogoutRedirect() string {
	return strings.TrimRight(h.config.OIDC.SecureOrigin, "/") + "/"
}

// requestOrigin reconstructs the origin the browser used. Forwarded
// headers count only when the peer is a trusted proxy.
func (h *AuthHandler) requestOrigin(c *gin.Context) *url.URL {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host

	if h.fromTrustedProxy(c) {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" || proto == "http" {
			scheme = proto
		}
		if forwarded := c.GetHeader("X-Forwarded-Host"); forwarded != "" {
			host = forwarded
		}
	}
	return &url.URL{Scheme: scheme, Host: host}
}

func (h *AuthHandler) fromTrustedProxy(c *gin.Context) bool {
	if len(h.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(c.RemoteIP())
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range h.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseProxies accepts IPs and CIDR ranges, the same forms gin takes
func parseProxies(entries []string, logger logrus.FieldLogger) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.WithField("proxy", entry).Warn("Ignoring invalid trusted proxy")
			continue
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes
}
