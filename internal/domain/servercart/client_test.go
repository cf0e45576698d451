package servercart

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
	"github.com/your-org/bookstore-storefront/internal/testutil"
)

func newTestClient(t *testing.T, token string) (*Client, *testutil.Ecom, *events.Bus) {
	t.Helper()
	ecom := testutil.NewEcom(
		testutil.FakeBook{ID: "A", Title: "Book A", Price: decimal.RequireFromString("9.99")},
		testutil.FakeBook{ID: "B", Title: "Book B", Price: decimal.RequireFromString("19.99")},
	)
	t.Cleanup(ecom.Close)
	ecom.Grant("tok-user1", "user1")

	bus := events.NewBus()
	api := apiclient.New(ecom.URL(), ecom.Server.Client(), apiclient.StaticToken(token))
	return NewClient(api, bus), ecom, bus
}

func TestClient_AddAndGet(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t, "tok-user1")

	line, err := client.Add(ctx, "A", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "Book A", line.Book.Title)

	_, err = client.Add(ctx, "B", 1)
	require.NoError(t, err)

	lines, err := client.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, 3, Count(lines))
	assert.True(t, Total(lines).Equal(decimal.RequireFromString("39.97")))
}

func TestClient_DecrementThenRemove(t *testing.T) {
	ctx := context.Background()
	client, ecom, _ := newTestClient(t, "tok-user1")
	ecom.Seed("user1", "A", 2)
	ecom.Seed("user1", "B", 1)

	lines, err := client.Get(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	a := lines[0]

	updated, err := client.SetQuantity(ctx, a.ID, a.Quantity-1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)

	require.NoError(t, client.Remove(ctx, a.ID))

	lines, err = client.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].Book.ID)
}

func TestClient_SetQuantityRejectsZero(t *testing.T) {
	client, ecom, _ := newTestClient(t, "tok-user1")

	_, err := client.SetQuantity(context.Background(), "line-1", 0)

	assert.Error(t, err)
	assert.Zero(t, ecom.Requests())
}

func TestClient_NoTokenIsUnauthorizedWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	client, ecom, _ := newTestClient(t, "")

	_, err := client.Get(ctx)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	_, err = client.Add(ctx, "A", 1)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	_, err = client.Checkout(ctx)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.ErrorIs(t, client.Remove(ctx, "line-1"), apiclient.ErrUnauthorized)

	assert.Zero(t, ecom.Requests())
}

func TestClient_RejectedTokenIsUnauthorized(t *testing.T) {
	client, _, _ := newTestClient(t, "tok-revoked")

	_, err := client.Get(context.Background())

	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
}

func TestClient_Checkout(t *testing.T) {
	ctx := context.Background()
	client, ecom, _ := newTestClient(t, "tok-user1")
	ecom.Seed("user1", "A", 1)
	ecom.Seed("user1", "B", 1)

	order, err := client.Checkout(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "CONFIRMED", order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("29.98")))

	lines, err := client.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClient_CheckoutInventoryFailureIsServiceError(t *testing.T) {
	client, ecom, _ := newTestClient(t, "tok-user1")
	ecom.Seed("user1", "A", 1)
	ecom.FailCheckout(http.StatusConflict)

	_, err := client.Checkout(context.Background())

	var svcErr *apiclient.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusConflict, svcErr.Status)
	assert.Equal(t, 1, ecom.CartQuantity("user1"))
}

func TestClient_MutationsAnnounceCartChange(t *testing.T) {
	ctx := context.Background()
	client, ecom, bus := newTestClient(t, "tok-user1")
	changes := 0
	bus.Subscribe(events.TopicServerCartChanged, func(events.Event) { changes++ })

	line, err := client.Add(ctx, "A", 2)
	require.NoError(t, err)
	_, err = client.SetQuantity(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = client.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Remove(ctx, line.ID))

	ecom.FailAddFor("B", http.StatusInternalServerError)
	_, err = client.Add(ctx, "B", 1)
	require.Error(t, err)

	assert.Equal(t, 3, changes, "reads and failed calls do not announce a change")
}

func TestClient_WithTokens(t *testing.T) {
	client, _, _ := newTestClient(t, "")

	lines, err := client.WithTokens(apiclient.StaticToken("tok-user1")).Get(context.Background())

	require.NoError(t, err)
	assert.Empty(t, lines)
}
