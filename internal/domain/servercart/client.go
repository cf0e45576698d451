// internal/domain/servercart/client.go
package servercart

import (
	"context"
	"fmt"
	"net/url"

	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

const (
	cartPath     = "/ecom/cart"
	checkoutPath = "/ecom/checkout"
)

// Client issues authenticated cart operations against the ecom service.
// Every operation is one round trip; failures surface to the caller.
type Client struct {
	api    *apiclient.Client
	events events.Publisher
}

// NewClient creates a cart client. Successful mutations are announced on
// publisher as TopicServerCartChanged.
func NewClient(api *apiclient.Client, publisher events.Publisher) *Client {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Client{
		api:    api,
		events: publisher,
	}
}

// WithTokens returns a client that authenticates with tokens
func (c *Client) WithTokens(tokens apiclient.TokenProvider) *Client {
	return &Client{
		api:    c.api.WithTokens(tokens),
		events: c.events,
	}
}

// Get fetches the whole server cart
func (c *Client) Get(ctx context.Context) ([]Line, error) {
	if err := c.requireToken(ctx); err != nil {
		return nil, err
	}

	var lines []Line
	if err := c.api.Get(ctx, cartPath, &lines); err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

// Add adds quantity units of a book and returns the updated line
func (c *Client) Add(ctx context.Context, bookID string, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}
	if err := c.requireToken(ctx); err != nil {
		return nil, err
	}

	var line Line
	if err := c.api.Post(ctx, cartPath, AddRequest{BookID: bookID, Quantity: quantity}, &line); err != nil {
		return nil, err
	}
	c.events.Publish(events.TopicServerCartChanged, nil)
	return &line, nil
}

// SetQuantity sets a line's quantity. Use Remove to drop a line.
func (c *Client) SetQuantity(ctx context.Context, lineID string, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1, use Remove for zero")
	}
	if err := c.requireToken(ctx); err != nil {
		return nil, err
	}

	var line Line
	if err := c.api.Put(ctx, linePath(lineID), UpdateRequest{Quantity: quantity}, &line); err != nil {
		return nil, err
	}
	c.events.Publish(events.TopicServerCartChanged, nil)
	return &line, nil
}

// Remove deletes a line
func (c *Client) Remove(ctx context.Context, lineID string) error {
	if err := c.requireToken(ctx); err != nil {
		return err
	}

	if err := c.api.Delete(ctx, linePath(lineID)); err != nil {
		return err
	}
	c.events.Publish(events.TopicServerCartChanged, nil)
	return nil
}

// Checkout turns the server cart into an order. The backend empties the
// cart as part of the same call.
func (c *Client) Checkout(ctx context.Context) (*Order, error) {
	if err := c.requireToken(ctx); err != nil {
		return nil, err
	}

	var order Order
	if err := c.api.Post(ctx, checkoutPath, struct{}{}, &order); err != nil {
		return nil, err
	}
	c.events.Publish(events.TopicServerCartChanged, nil)
	return &order, nil
}

func (c *Client) requireToken(ctx context.Context) error {
	if c.api.Token(ctx) == "" {
		return apiclient.ErrUnauthorized
	}
	return nil
}

func linePath(lineID string) string {
	return cartPath + "/" + url.PathEscape(lineID)
}
