package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/app"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/testutil"
)

type stack struct {
	ecom    *testutil.Ecom
	idp     *testutil.IDP
	durable *storage.Memory
	server  *httptest.Server
}

func newStack(t *testing.T, configure ...func(*config.Config)) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ecom := testutil.NewEcom(
		testutil.FakeBook{ID: "A", Title: "Book A", Author: "Ann", Price: decimal.RequireFromString("9.99"), Stock: 2},
		testutil.FakeBook{ID: "B", Title: "Book B", Author: "Bob", Price: decimal.RequireFromString("19.99"), Stock: 0},
	)
	t.Cleanup(ecom.Close)

	cfg := config.FromEnv()
	cfg.App.Environment = "test"
	cfg.Storage.Backend = "memory"
	cfg.Backend.BaseURL = ecom.URL()
	cfg.Session.SecureCookies = false

	idp := testutil.NewIDP(cfg.OIDC.ClientID)
	t.Cleanup(idp.Close)
	idp.OnIssue = func(access, subject string) { ecom.Grant(access, subject) }
	cfg.OIDC.AuthURL = idp.AuthURL()
	cfg.OIDC.TokenURL = idp.TokenURL()
	cfg.OIDC.EndSessionURL = idp.EndSessionURL()

	ts := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Listener.Addr().String()
	cfg.OIDC.SecureOrigin = baseURL
	cfg.OIDC.RedirectURI = baseURL + "/callback"
	for _, fn := range configure {
		fn(cfg)
	}

	logger, _ := logtest.NewNullLogger()
	durable := storage.NewMemory()
	registry := app.NewRegistry(app.NewBuilder(cfg, durable, logger), cfg.Session.ContextIdleTTL, logger)
	t.Cleanup(registry.Close)

	ts.Config.Handler = NewServer(cfg, registry, nil, nil, logger).Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	return &stack{ecom: ecom, idp: idp, durable: durable, server: ts}
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (s *stack) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: s.server.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: 5 * time.Second,
		},
	}
}

func (b *browser) do(method, path string, body any) (*http.Response, map[string]any) {
	b.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(payload)
	}
	target := path
	if strings.HasPrefix(path, "/") {
		target = b.base + path
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(b.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func (s *stack) login(t *testing.T, b *browser, returnPath string, who testutil.Identity) string {
	t.Helper()
	resp, _ := b.do(http.MethodGet, "/login?return="+url.QueryEscape(returnPath), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	authURL := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(authURL, s.idp.AuthURL()), authURL)

	params, err := s.idp.Authorize(authURL, who)
	require.NoError(t, err)

	resp, _ = b.do(http.MethodGet, "/callback?"+params.Encode(), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

func TestHealthAndReady(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	resp, body := b.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = b.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestGuestCartThroughLoginAndCheckout(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	for _, item := range []map[string]any{
		{"bookId": "A", "title": "Book A", "price": 9.99},
		{"bookId": "B", "title": "Book B", "price": 19.99},
		{"bookId": "A", "title": "Book A", "price": 9.99},
	} {
		resp, _ := b.do(http.MethodPost, "/api/cart/items", item)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := b.do(http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cart := data(body)
	assert.Equal(t, "guest", cart["mode"])
	assert.Equal(t, "login_to_checkout", cart["checkoutAction"])
	assert.Equal(t, float64(3), cart["count"])

	resp, _ = b.do(http.MethodPost, "/api/checkout", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "anonymous checkout is never offered")

	destination := s.login(t, b, "/", testutil.Identity{Subject: "reader", Email: "reader@example.com"})
	assert.Equal(t, "/cart", destination)
	assert.Equal(t, 3, s.ecom.CartQuantity("reader"))

	_, body = b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, true, data(body)["authenticated"])
	assert.Equal(t, "reader@example.com", data(body)["email"])

	_, body = b.do(http.MethodGet, "/api/cart", nil)
	cart = data(body)
	assert.Equal(t, "server", cart["mode"])
	assert.Equal(t, "checkout", cart["checkoutAction"])
	assert.Equal(t, float64(3), cart["count"])

	_, body = b.do(http.MethodGet, "/api/cart/badge", nil)
	assert.Equal(t, float64(3), data(body)["count"])

	resp, body = b.do(http.MethodPost, "/api/checkout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	redirect, _ := data(body)["redirect"].(string)
	assert.Equal(t, "/order-confirmation?orderId=order-1&total=39.97", redirect)

	resp, body = b.do(http.MethodGet, redirect, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "order-1", data(body)["orderId"])

	assertNoTokensStored(t, s.durable)
}

func assertNoTokensStored(t *testing.T, durable *storage.Memory) {
	t.Helper()
	ctx := context.Background()
	for _, scope := range durable.Scopes() {
		area := durable.Area(scope)
		keys, err := area.Keys(ctx)
		require.NoError(t, err)
		for _, k := range keys {
			v, err := area.GetItem(ctx, k)
			require.NoError(t, err)
			assert.NotContains(t, v, "access-")
			assert.NotContains(t, v, "refresh-")
			assert.NotContains(t, strings.ToLower(k), "token")
		}
	}
}

func TestProtectedPageRedirectsToLogin(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	resp, _ := b.do(http.MethodGet, "/order-confirmation?orderId=order-9", nil)

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?return=%2Forder-confirmation%3ForderId%3Dorder-9", resp.Header.Get("Location"))

	destination := s.login(t, b, "/order-confirmation?orderId=order-9", testutil.Identity{Subject: "reader"})
	assert.Equal(t, "/order-confirmation?orderId=order-9", destination)
}

func TestLoginRefusesControlCharacterReturn(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	destination := s.login(t, b, "/\t/evil.example", testutil.Identity{Subject: "reader"})
	assert.Equal(t, "/", destination)

	// already authenticated: /login answers with the return path directly
	for _, target := range []string{"/\t/evil.example", "/\r\n/evil.example"} {
		resp, _ := b.do(http.MethodGet, "/login?return="+url.QueryEscape(target), nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
	}
}

func TestCallbackFailureGoesHome(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)
	resp, _ := b.do(http.MethodPost, "/api/cart/items", map[string]any{"bookId": "A", "title": "Book A", "price": 9.99})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.do(http.MethodGet, "/callback?code=stolen&state=forged", nil)

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	_, body := b.do(http.MethodGet, "/api/cart/badge", nil)
	assert.Equal(t, float64(1), data(body)["count"], "guest cart is kept")
	_, body = b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, "anonymous", data(body)["state"])
}

func TestInsecureOriginIsForwarded(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/login?return=%2Fcart", nil)
	require.NoError(t, err)
	req.Host = "shop.internal:8080"
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, s.server.URL+"/login?return=%2Fcart", resp.Header.Get("Location"))
}

func TestForwardedHeadersNeedTrustedProxy(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/login?return=%2Fcart", nil)
	require.NoError(t, err)
	req.Host = "shop.internal:8080"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "shop.example")
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, s.server.URL+"/login?return=%2Fcart", resp.Header.Get("Location"), "spoofed headers are ignored")
}

func TestForwardedHeadersFromTrustedProxy(t *testing.T) {
	s := newStack(t, func(cfg *config.Config) {
		cfg.Security.TrustedProxies = []string{"127.0.0.1/8", "::1"}
	})
	b := s.browser(t)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/login?return=%2Fcart", nil)
	require.NoError(t, err)
	req.Host = "shop.internal:8080"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "shop.example")
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), s.idp.AuthURL()), resp.Header.Get("Location"))
}

func TestLogoutEndsSession(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)
	s.login(t, b, "/", testutil.Identity{Subject: "reader"})

	resp, _ := b.do(http.MethodPost, "/logout", nil)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	target, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, s.server.URL+"/", target.Query().Get("post_logout_redirect_uri"))
	assert.NotEmpty(t, target.Query().Get("id_token_hint"))

	_, body := b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, "logged_out", data(body)["state"])
	_, body = b.do(http.MethodGet, "/api/cart", nil)
	assert.Equal(t, "guest", data(body)["mode"])
}

func TestTabsShareGuestCartButNotSessions(t *testing.T) {
	s := newStack(t)
	tab1 := s.browser(t)
	resp, _ := tab1.do(http.MethodPost, "/api/cart/items", map[string]any{"bookId": "A", "title": "Book A", "price": 9.99})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// a second tab keeps the visitor cookie but gets its own browsing context
	tab2 := s.browser(t)
	u, _ := url.Parse(s.server.URL)
	for _, c := range tab1.client.Jar.Cookies(u) {
		if c.Name == "visitor_id" {
			tab2.client.Jar.SetCookies(u, []*http.Cookie{c})
		}
	}

	_, body := tab2.do(http.MethodGet, "/api/cart/badge", nil)
	assert.Equal(t, float64(1), data(body)["count"])

	s.login(t, tab1, "/", testutil.Identity{Subject: "reader"})

	_, body = tab2.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, data(body)["authenticated"])
	_, body = tab2.do(http.MethodGet, "/api/cart/badge", nil)
	assert.Equal(t, float64(0), data(body)["count"], "merge emptied the shared guest cart")
}

func TestQuantityControls(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)
	resp, _ := b.do(http.MethodPost, "/api/cart/items", map[string]any{"bookId": "A", "title": "Book A", "price": 9.99})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := b.do(http.MethodPatch, "/api/cart/items/A", map[string]any{"delta": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), data(body)["count"])

	resp, _ = b.do(http.MethodPatch, "/api/cart/items/A", map[string]any{"delta": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s.login(t, b, "/", testutil.Identity{Subject: "reader"})
	_, body = b.do(http.MethodGet, "/api/cart", nil)
	lines, _ := data(body)["lines"].([]any)
	require.Len(t, lines, 1)
	lineID, _ := lines[0].(map[string]any)["id"].(string)

	resp, body = b.do(http.MethodPatch, "/api/cart/items/"+lineID, map[string]any{"delta": -1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), data(body)["count"])

	resp, body = b.do(http.MethodPatch, "/api/cart/items/"+lineID, map[string]any{"delta": -1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), data(body)["count"])

	resp, _ = b.do(http.MethodPatch, "/api/cart/items/"+lineID, map[string]any{"delta": -1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newStack(t)
	b := s.browser(t)

	resp, body := b.do(http.MethodGet, "/api/books?page=0&size=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), data(body)["totalElements"])

	resp, body = b.do(http.MethodGet, "/api/books/search?q=bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, data(body)["content"], 1)

	resp, _ = b.do(http.MethodGet, "/api/books/search", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = b.do(http.MethodGet, "/api/books/A/stock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), data(body)["available"])

	resp, _ = b.do(http.MethodGet, "/api/books/missing/stock", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
