// internal/app/storefront.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/domain/badge"
	"github.com/your-org/bookstore-storefront/internal/domain/catalog"
	"github.com/your-org/bookstore-storefront/internal/domain/guestcart"
	"github.com/your-org/bookstore-storefront/internal/domain/reconcile"
	"github.com/your-org/bookstore-storefront/internal/domain/servercart"
	"github.com/your-org/bookstore-storefront/internal/domain/session"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

const (
	ModeGuest  = "guest"
	ModeServer = "server"

	ActionLoginToCheckout = "login_to_checkout"
	ActionCheckout        = "checkout"
)

var (
	// ErrLoginRequired is returned for operations only an authenticated
	// context may perform
	ErrLoginRequired = errors.New("login required")
	// ErrLineNotFound means the cart has no line with the given ID
	ErrLineNotFound = errors.New("cart line not found")
)

// CartLine is one row of the cart page
type CartLine struct {
	ID       string          `json:"id"`
	BookID   string          `json:"bookId"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CartView is what the cart page shows
type CartView struct {
	Mode           string          `json:"mode"`
	Lines          []CartLine      `json:"lines"`
	Count          int             `json:"count"`
	Total          decimal.Decimal `json:"total"`
	CheckoutAction string          `json:"checkoutAction"`
}

// CheckoutResult is a placed order and where to send the browser
type CheckoutResult struct {
	Order    *servercart.Order `json:"order"`
	Redirect string            `json:"redirect"`
}

// SessionInfo describes the session of a browsing context
type SessionInfo struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
}

// Storefront is everything one browsing context owns: its bus and one
// instance of each component, wired together.
type Storefront struct {
	ContextID string
	VisitorID string

	Bus       *events.Bus
	Guest     *guestcart.Store
	Session   *session.Manager
	Cart      *servercart.Client
	Catalog   *catalog.Service
	Reconcile *reconcile.Controller
	Badge     *badge.Projector

	// cartMu orders the cart operations of this context against each other
	// and against the login callback's merge.
	cartMu sync.Mutex

	logger     logrus.FieldLogger
	ephemeral  *storage.Memory
	stopPoll   context.CancelFunc
	closeOnce  sync.Once
	lastSeenMu sync.Mutex
	lastSeen   time.Time
}

// Authenticated reports whether the context has a usable session
func (s *Storefront) Authenticated(ctx context.Context) bool {
	return s.Session.AccessToken(ctx) != ""
}

// SessionInfo returns the session state for the browser
func (s *Storefront) SessionInfo(ctx context.Context) SessionInfo {
	// reading the token first lets an expired session move to AuthExpired
	s.Session.AccessToken(ctx)

	info := SessionInfo{State: s.Session.State().String()}
	if sess, ok := s.Session.Session(); ok {
		info.Authenticated = true
		info.Subject = sess.Claims.Subject
		info.Email = sess.Claims.Email
		info.Name = sess.Claims.Name
	}
	return info
}

// CartView returns the cart the context should see: the guest cart while
// anonymous, the server cart while authenticated.
func (s *Storefront) CartView(ctx context.Context) (*CartView, error) {
	if !s.Authenticated(ctx) {
		lines, err := s.Guest.Read(ctx)
		if err != nil {
			return nil, err
		}
		view := &CartView{
			Mode:           ModeGuest,
			Lines:          make([]CartLine, 0, len(lines)),
			Count:          guestcart.Count(lines),
			Total:          guestcart.Total(lines),
			CheckoutAction: ActionLoginToCheckout,
		}
		for _, l := range lines {
			view.Lines = append(view.Lines, CartLine{
				ID:       l.ProductID,
				BookID:   l.ProductID,
				Title:    l.Title,
				Price:    l.Price,
				Quantity: l.Quantity,
				Subtotal: l.Subtotal(),
			})
		}
		return view, nil
	}

	lines, err := s.Cart.Get(ctx)
	if err != nil {
		return nil, err
	}
	view := &CartView{
		Mode:           ModeServer,
		Lines:          make([]CartLine, 0, len(lines)),
		Count:          servercart.Count(lines),
		Total:          servercart.Total(lines),
		CheckoutAction: ActionCheckout,
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, CartLine{
			ID:       l.ID,
			BookID:   l.Book.ID,
			Title:    l.Book.Title,
			Price:    l.Book.Price,
			Quantity: l.Quantity,
			Subtotal: l.Subtotal(),
		})
	}
	return view, nil
}

// HandleCallback completes a login callback and merges the guest cart.
// Cart operations of this context wait until the merge has finished, so
// none of them lands between the guest cart snapshot and its clearing.
func (s *Storefront) HandleCallback(ctx context.Context, params url.Values) (reconcile.Result, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	return s.Reconcile.HandleCallback(ctx, params)
}

// AddToCart puts one unit of a book in whichever cart is authoritative
func (s *Storefront) AddToCart(ctx context.Context, bookID, title string, price decimal.Decimal) error {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if !s.Authenticated(ctx) {
		_, err := s.Guest.Add(ctx, bookID, title, price)
		return err
	}
	_, err := s.Cart.Add(ctx, bookID, 1)
	return err
}

// AdjustQuantity applies delta to a cart line. For the guest cart lineID is
// the book ID; for the server cart it is the line ID. A server line that
// would drop to zero is removed.
func (s *Storefront) AdjustQuantity(ctx context.Context, lineID string, delta int) error {
	if delta == 0 {
		return nil
	}
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if !s.Authenticated(ctx) {
		_, err := s.Guest.AdjustQuantity(ctx, lineID, delta)
		return err
	}

	lines, err := s.Cart.Get(ctx)
	if err != nil {
		return err
	}
	var line *servercart.Line
	for i := range lines {
		if lines[i].ID == lineID {
			line = &lines[i]
			break
		}
	}
	if line == nil {
		return fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}

	switch quantity := line.Quantity + delta; {
	case delta > 0:
		_, err = s.Cart.Add(ctx, line.Book.ID, delta)
	case quantity <= 0:
		err = s.Cart.Remove(ctx, line.ID)
	default:
		_, err = s.Cart.SetQuantity(ctx, line.ID, quantity)
	}
	return err
}

// Checkout places the order for the server cart. Anonymous contexts must
// log in first.
func (s *Storefront) Checkout(ctx context.Context) (*CheckoutResult, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if !s.Authenticated(ctx) {
		return nil, ErrLoginRequired
	}

	order, err := s.Cart.Checkout(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("orderId", order.ID)
	q.Set("total", order.Total.StringFixed(2))

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
	}).Info("Order placed")

	return &CheckoutResult{
		Order:    order,
		Redirect: "/order-confirmation?" + q.Encode(),
	}, nil
}

// Touch records activity on the context
func (s *Storefront) Touch(now time.Time) {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	s.lastSeen = now
}

// LastSeen returns the time of the last activity
func (s *Storefront) LastSeen() time.Time {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	return s.lastSeen
}

// Close ends the context: background work stops and its ephemeral area is
// dropped. Durable state is left for the visitor's other contexts.
func (s *Storefront) Close() {
	s.closeOnce.Do(func() {
		if s.stopPoll != nil {
			s.stopPoll()
		}
		s.Badge.Close()
		s.Session.Close()
		s.ephemeral.Drop(s.ContextID)
	})
}
