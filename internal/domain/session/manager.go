// internal/domain/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/pkg/auth"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
	"golang.org/x/oauth2"
)

const (
	pendingKeyPrefix = "oidc."
	pendingMaxAge    = 15 * time.Minute
	defaultReturnURL = "/"
)

// Options configures a Manager
type Options struct {
	OAuth2        oauth2.Config
	EndSessionURL string
	SecureOrigin  string
	RenewBefore   time.Duration
	// HTTPClient is used for the token endpoint. Nil means http.DefaultClient.
	HTTPClient *http.Client
	Now        func() time.Time
}

// OptionsFromConfig builds Options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OAuth2: oauth2.Config{
			ClientID: cfg.OIDC.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL(),
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.OIDC.RedirectURI,
			Scopes:      cfg.OIDC.Scopes,
		},
		EndSessionURL: cfg.EndSessionURL(),
		SecureOrigin:  cfg.OIDC.SecureOrigin,
		RenewBefore:   cfg.Session.RenewBefore,
	}
}

// Manager runs the authorization-code + PKCE login for one browsing context
// and owns its in-memory session. The pending verifier and return path
// survive the redirect in the context's ephemeral area; tokens never leave
// process memory.
type Manager struct {
	opts   Options
	area   storage.Area
	events events.Publisher
	logger logrus.FieldLogger
	claims *auth.ClaimsParser

	mu         sync.Mutex
	state      State
	session    *Session
	generation uint64
	renewTimer *time.Timer
	closed     bool
}

// NewManager creates a manager in the Anonymous state. area must be the
// ephemeral area of the browsing context.
func NewManager(opts Options, area storage.Area, publisher events.Publisher, logger logrus.FieldLogger) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Manager{
		opts:   opts,
		area:   area,
		events: publisher,
		logger: logger.WithField("component", "session"),
		claims: auth.NewClaimsParser(opts.OAuth2.ClientID),
		state:  Anonymous,
	}
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session, if authenticated
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Login starts the redirect round trip. returnPath is carried through the
// provider and handed back by HandleCallback. origin is the origin the
// browser is on; a non-secure origin cannot compute the PKCE challenge
// client-side, so the request is forwarded to the canonical secure origin.
func (m *Manager) Login(ctx context.Context, returnPath string, origin *url.URL) (*LoginRedirect, error) {
	returnPath = SanitizeReturnPath(returnPath)

	if origin != nil && !IsSecureOrigin(origin) {
		target := strings.TrimRight(m.opts.SecureOrigin, "/") + "/login?return=" + url.QueryEscape(returnPath)
		m.logger.WithField("origin", origin.String()).Info("Forwarding login to secure origin")
		return &LoginRedirect{URL: target, Forwarded: true}, nil
	}

	if _, ok := m.Session(); ok && m.AccessToken(ctx) != "" {
		return &LoginRedirect{URL: returnPath}, nil
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	pending, err := json.Marshal(pendingLogin{
		Verifier:  verifier,
		State:     PendingState{ReturnURL: returnPath},
		CreatedAt: m.opts.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login state: %w", err)
	}
	if err := m.area.SetItem(ctx, pendingKeyPrefix+state, string(pending)); err != nil {
		return nil, fmt.Errorf("failed to store login state: %w", err)
	}

	authURL := m.opts.OAuth2.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	m.transition(AuthPending, nil)

	return &LoginRedirect{URL: authURL}, nil
}

// HandleCallback completes the round trip with the provider's callback
// parameters. On success the session is Authenticated and carries the
// PendingState given to Login. Any failure wraps ErrProtocol and leaves the
// context Anonymous.
func (m *Manager) HandleCallback(ctx context.Context, params url.Values) (*Session, error) {
	if providerErr := params.Get("error"); providerErr != "" {
		return nil, m.fail(fmt.Errorf("provider returned %s: %s", providerErr, params.Get("error_description")))
	}

	state := params.Get("state")
	if state == "" {
		return nil, m.fail(fmt.Errorf("callback has no state"))
	}
	pending, err := m.takePending(ctx, state)
	if err != nil {
		return nil, m.fail(err)
	}

	code := params.Get("code")
	if code == "" {
		return nil, m.fail(fmt.Errorf("callback has no authorization code"))
	}

	token, err := m.opts.OAuth2.Exchange(m.httpContext(ctx), code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return nil, m.fail(fmt.Errorf("code exchange failed: %w", err))
	}

	sess, err := m.sessionFromToken(token, pending.State, nil)
	if err != nil {
		return nil, m.fail(err)
	}

	m.transition(Authenticated, sess)
	m.logger.WithFields(logrus.Fields{
		"subject":    sess.Claims.Subject,
		"expires_at": sess.Expiry.Format(time.RFC3339),
	}).Info("Login completed")

	out := *sess
	return &out, nil
}

// Logout ends the session locally and returns the provider's end-session
// URL, which sends the browser back to postLogoutRedirect afterwards.
func (m *Manager) Logout(ctx context.Context, postLogoutRedirect string) (string, error) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	q := url.Values{}
	q.Set("client_id", m.opts.OAuth2.ClientID)
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	if sess != nil && sess.IDToken != "" {
		q.Set("id_token_hint", sess.IDToken)
	}

	if err := m.clearPending(ctx); err != nil {
		m.logger.WithError(err).Warn("Failed to clear pending login state")
	}
	m.transition(LoggedOut, nil)

	return m.opts.EndSessionURL + "?" + q.Encode(), nil
}

// AccessToken returns the access token while Authenticated and unexpired,
// and "" otherwise. Finding the token expired moves the context to
// AuthExpired.
func (m *Manager) AccessToken(ctx context.Context) string {
	m.mu.Lock()
	if m.state != Authenticated || m.session == nil {
		m.mu.Unlock()
		return ""
	}
	if !m.session.Expired(m.opts.Now()) {
		token := m.session.AccessToken
		m.mu.Unlock()
		return token
	}
	m.mu.Unlock()

	m.logger.Info("Access token expired")
	m.transition(AuthExpired, nil)
	return ""
}

// Renew exchanges the refresh token for a new access token without user
// interaction. A failed renewal drops the context to Anonymous.
func (m *Manager) Renew(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Authenticated || m.session == nil || m.session.RefreshToken == "" {
		m.mu.Unlock()
		return ErrNoSession
	}
	current := *m.session
	generation := m.generation
	m.mu.Unlock()

	source := m.opts.OAuth2.TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := source.Token()
	if err == nil {
		var sess *Session
		sess, err = m.sessionFromToken(token, current.PendingState, &current)
		if err == nil {
			if !m.replaceIfCurrent(generation, sess) {
				return ErrNoSession
			}
			m.logger.WithField("expires_at", sess.Expiry.Format(time.RFC3339)).Debug("Session renewed")
			return nil
		}
	}

	m.logger.WithError(err).Warn("Silent renew failed, continuing anonymously")
	m.mu.Lock()
	stale := m.generation != generation
	m.mu.Unlock()
	if !stale {
		m.transition(Anonymous, nil)
	}
	return fmt.Errorf("silent renew failed: %w", err)
}

// Close stops background renewal. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopRenewLocked()
}

// SanitizeReturnPath keeps only same-origin absolute paths. Paths with
// control characters are refused: browsers drop tabs and newlines when
// resolving a Location, so "/\t/host" would arrive as "//host".
func SanitizeReturnPath(p string) string {
	if p == "" || strings.ContainsFunc(p, unicode.IsControl) {
		return defaultReturnURL
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return defaultReturnURL
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return defaultReturnURL
	}
	return p
}

// IsSecureOrigin reports whether a browser on origin has the crypto
// primitives PKCE needs: https, or a loopback host.
func IsSecureOrigin(origin *url.URL) bool {
	if origin.Scheme == "https" {
		return true
	}
	host := origin.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (m *Manager) fail(err error) error {
	m.logger.WithError(err).Warn("Login callback failed")
	m.transition(Anonymous, nil)
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}

// transition sets state and session, rearms renewal, and publishes the new
// state after the lock is released so subscribers may call back in.
func (m *Manager) transition(state State, sess *Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	previous := m.state
	m.state = state
	m.session = sess
	m.generation++
	m.stopRenewLocked()
	if state == Authenticated && sess != nil {
		m.scheduleRenewLocked(sess)
	}
	m.mu.Unlock()

	if previous != state || state == Authenticated {
		m.events.Publish(events.TopicSessionChanged, state)
	}
}

func (m *Manager) replaceIfCurrent(generation uint64, sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.generation != generation || m.state != Authenticated {
		return false
	}
	m.session = sess
	m.generation++
	m.stopRenewLocked()
	m.scheduleRenewLocked(sess)
	return true
}

func (m *Manager) scheduleRenewLocked(sess *Session) {
	if m.opts.RenewBefore <= 0 || sess.RefreshToken == "" || sess.Expiry.IsZero() {
		return
	}
	wait := sess.Expiry.Sub(m.opts.Now()) - m.opts.RenewBefore
	if wait < 0 {
		wait = 0
	}
	m.renewTimer = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = m.Renew(ctx)
	})
}

func (m *Manager) stopRenewLocked() {
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
}

func (m *Manager) takePending(ctx context.Context, state string) (*pendingLogin, error) {
	key := pendingKeyPrefix + state
	raw, err := m.area.GetItem(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no matching login state")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load login state: %w", err)
	}
	if err := m.area.RemoveItem(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to consume login state: %w", err)
	}

	var pending pendingLogin
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("login state is corrupt: %w", err)
	}
	if m.opts.Now().Sub(pending.CreatedAt) > pendingMaxAge {
		return nil, fmt.Errorf("login state expired")
	}
	return &pending, nil
}

func (m *Manager) clearPending(ctx context.Context) error {
	keys, err := m.area.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if strings.HasPrefix(k, pendingKeyPrefix) {
			if err := m.area.RemoveItem(ctx, k); err != nil {
				return err
			}
		}
	}
	return nil
}

// sessionFromToken builds a session from a token response. On renewal the
// provider may omit the ID token, in which case the previous claims stay.
func (m *Manager) sessionFromToken(token *oauth2.Token, pending PendingState, previous *Session) (*Session, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}

	sess := &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		PendingState: pending,
	}
	if previous != nil {
		if sess.RefreshToken == "" {
			sess.RefreshToken = previous.RefreshToken
		}
		sess.IDToken = previous.IDToken
		sess.Claims = previous.Claims
	}

	if idToken, _ := token.Extra("id_token").(string); idToken != "" {
		claims, err := m.claims.ParseIDToken(idToken, m.opts.Now())
		if err != nil {
			return nil, err
		}
		sess.IDToken = idToken
		sess.Claims = Claims{
			Subject: claims.Subject,
			Email:   claims.Email,
			Name:    claims.DisplayName(),
		}
	}
	if sess.Claims.Subject == "" {
		return nil, fmt.Errorf("token response has no id token")
	}
	return sess, nil
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	if m.opts.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.opts.HTTPClient)
}
