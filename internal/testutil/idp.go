package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user a fake login signs in as
type Identity struct {
	Subject  string
	Email    string
	Name     string
	Username string
}

type pendingCode struct {
	identity    Identity
	challenge   string
	redirectURI string
}

// IDP is a fake OIDC provider exposing authorization, token and logout
// endpoints. Only the token endpoint is called server-to-server; tests drive
// the authorization step through Authorize.
type IDP struct {
	Server   *httptest.Server
	ClientID string

	// OnIssue is called for every access token the provider hands out.
	OnIssue func(accessToken, subject string)
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration

	mu            sync.Mutex
	codes         map[string]pendingCode
	refresh       map[string]Identity
	issued        int
	tokenRequests int
	failToken     bool
	failRefresh   bool
}

// NewIDP starts a fake provider for clientID
func NewIDP(clientID string) *IDP {
	gin.SetMode(gin.TestMode)
	p := &IDP{
		ClientID: clientID,
		TokenTTL: 5 * time.Minute,
		codes:    make(map[string]pendingCode),
		refresh:  make(map[string]Identity),
	}

	r := gin.New()
	r.POST("/token", p.token)
	r.GET("/logout", func(c *gin.Context) {
		c.Redirect(http.StatusFound, c.Query("post_logout_redirect_uri"))
	})
	p.Server = httptest.NewServer(r)
	return p
}

// AuthURL is the authorization endpoint
func (p *IDP) AuthURL() string { return p.Server.URL + "/auth" }

// TokenURL is the token endpoint
func (p *IDP) TokenURL() string { return p.Server.URL + "/token" }

// EndSessionURL is the logout endpoint
func (p *IDP) EndSessionURL() string { return p.Server.URL + "/logout" }

// Close stops the server
func (p *IDP) Close() { p.Server.Close() }

// FailTokenExchange makes every authorization_code grant fail
func (p *IDP) FailTokenExchange(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failToken = fail
}

// FailRefresh makes every refresh_token grant fail
func (p *IDP) FailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// TokenRequests counts calls to the token endpoint
func (p *IDP) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// Authorize plays the interactive login for the redirect URL the storefront
// produced and returns the callback query the provider would send back.
func (p *IDP) Authorize(authURL string, who Identity) (url.Values, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if q.Get("client_id") != p.ClientID {
		return nil, fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		return nil, fmt.Errorf("unexpected response_type %q", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return nil, fmt.Errorf("missing S256 code challenge")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	code := fmt.Sprintf("code-%d", p.issued)
	p.codes[code] = pendingCode{
		identity:    who,
		challenge:   q.Get("code_challenge"),
		redirectURI: q.Get("redirect_uri"),
	}
	return url.Values{"code": {code}, "state": {q.Get("state")}}, nil
}

func (p *IDP) token(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRequests++

	switch c.PostForm("grant_type") {
	case "authorization_code":
		if p.failToken {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
		pending, ok := p.codes[c.PostForm("code")]
		delete(p.codes, c.PostForm("code"))
		if !ok || pending.redirectURI != c.PostForm("redirect_uri") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
		sum := sha256.Sum256([]byte(c.PostForm("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != pending.challenge {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "PKCE verification failed"})
			return
		}
		p.issueLocked(c, pending.identity)

	case "refresh_token":
		who, ok := p.refresh[c.PostForm("refresh_token")]
		if p.failRefresh || !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
		delete(p.refresh, c.PostForm("refresh_token"))
		p.issueLocked(c, who)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
	}
}

func (p *IDP) issueLocked(c *gin.Context, who Identity) {
	p.issued++
	access := fmt.Sprintf("access-%s-%d", who.Subject, p.issued)
	refresh := fmt.Sprintf("refresh-%s-%d", who.Subject, p.issued)
	p.refresh[refresh] = who

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   who.Subject,
		"email": who.Email,
		"aud":   p.ClientID,
		"iat":   now.Unix(),
		"exp":   now.Add(p.TokenTTL).Unix(),
	}
	if who.Name != "" {
		claims["name"] = who.Name
	}
	if who.Username != "" {
		claims["preferred_username"] = who.Username
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake-idp-key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if p.OnIssue != nil {
		p.OnIssue(access, who.Subject)
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    int(p.TokenTTL / time.Second),
		"refresh_token": refresh,
		"id_token":      idToken,
	})
}
