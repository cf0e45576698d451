// internal/domain/reconcile/controller.go
package reconcile

import (
	"context"
	"net/url"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/domain/guestcart"
	"github.com/your-org/bookstore-storefront/internal/domain/servercart"
	"github.com/your-org/bookstore-storefront/internal/domain/session"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDestination = "/"
	cartDestination    = "/cart"
	defaultConcurrency = 4
)

// Authenticator completes the provider callback
type Authenticator interface {
	HandleCallback(ctx context.Context, params url.Values) (*session.Session, error)
}

// Result describes one callback
type Result struct {
	Destination string
	Submitted   int
	Failed      int
}

// Controller owns the login callback: it completes authentication, moves
// the guest cart into the server cart and decides where the browser goes.
type Controller struct {
	auth        Authenticator
	guest       *guestcart.Store
	cart        *servercart.Client
	logger      logrus.FieldLogger
	concurrency int
}

// NewController creates a controller. concurrency bounds the number of
// add-to-cart calls in flight; values below 1 use the default.
func NewController(auth Authenticator, guest *guestcart.Store, cart *servercart.Client, logger logrus.FieldLogger, concurrency int) *Controller {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Controller{
		auth:        auth,
		guest:       guest,
		cart:        cart,
		logger:      logger.WithField("component", "reconcile"),
		concurrency: concurrency,
	}
}

// HandleCallback completes the callback and merges the guest cart. Lines the
// server rejects are dropped: the guest cart is cleared once every add has
// settled, whatever the outcome. The returned error is the authentication
// failure, in which case Destination is "/".
func (c *Controller) HandleCallback(ctx context.Context, params url.Values) (Result, error) {
	sess, err := c.auth.HandleCallback(ctx, params)
	if err != nil {
		c.logger.WithError(err).Warn("Login callback failed")
		return Result{Destination: defaultDestination}, err
	}

	returnURL := sess.PendingState.ReturnURL
	if returnURL == "" {
		returnURL = defaultDestination
	}

	lines, err := c.guest.Read(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to read guest cart, skipping merge")
		return Result{Destination: returnURL}, nil
	}
	if len(lines) == 0 {
		return Result{Destination: returnURL}, nil
	}

	failed := c.submit(ctx, sess, lines)

	if err := c.guest.Clear(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to clear guest cart after merge")
	}

	c.logger.WithFields(logrus.Fields{
		"subject":   sess.Claims.Subject,
		"submitted": len(lines),
		"failed":    failed,
	}).Info("Guest cart merged")

	destination := returnURL
	if destination == defaultDestination {
		destination = cartDestination
	}
	return Result{
		Destination: destination,
		Submitted:   len(lines),
		Failed:      failed,
	}, nil
}

func (c *Controller) submit(ctx context.Context, sess *session.Session, lines []guestcart.Line) int {
	cart := c.cart.WithTokens(apiclient.StaticToken(sess.AccessToken))

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, line := range lines {
		line := line
		g.Go(func() error {
			if _, err := cart.Add(gctx, line.ProductID, line.Quantity); err != nil {
				failed.Add(1)
				c.logger.WithError(err).WithField("book_id", line.ProductID).Warn("Failed to merge guest cart line")
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load())
}
