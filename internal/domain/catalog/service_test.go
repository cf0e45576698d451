package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"github.com/your-org/bookstore-storefront/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ecom := testutil.NewEcom(
		testutil.FakeBook{ID: "3", Title: "Zen and the Art", Author: "Pirsig", Price: decimal.RequireFromString("12.50"), Stock: 4},
		testutil.FakeBook{ID: "1", Title: "Dune", Author: "Herbert", Price: decimal.RequireFromString("9.99"), Stock: 0},
		testutil.FakeBook{ID: "2", Title: "Go in Action", Author: "Kennedy", Price: decimal.RequireFromString("39.00"), Stock: 2},
	)
	t.Cleanup(ecom.Close)
	return NewService(apiclient.New(ecom.URL(), ecom.Server.Client(), nil))
}

func TestList_SortedByTitle(t *testing.T) {
	svc := newTestService(t)

	page, err := svc.List(context.Background(), ListRequest{Page: 0, Size: 2})
	require.NoError(t, err)

	require.Len(t, page.Content, 2)
	assert.Equal(t, "Dune", page.Content[0].Title)
	assert.Equal(t, "Go in Action", page.Content[1].Title)
	assert.Equal(t, 3, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.Content[0].Price.Equal(decimal.RequireFromString("9.99")))
}

func TestList_PastTheEnd(t *testing.T) {
	svc := newTestService(t)

	page, err := svc.List(context.Background(), ListRequest{Page: 5, Size: 0})
	require.NoError(t, err)
	assert.NotNil(t, page.Content)
	assert.Empty(t, page.Content)
	assert.Equal(t, DefaultPageSize, page.Size)
}

func TestSearch(t *testing.T) {
	svc := newTestService(t)

	page, err := svc.Search(context.Background(), SearchRequest{Query: "herbert"})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "1", page.Content[0].ID)

	_, err = svc.Search(context.Background(), SearchRequest{})
	assert.Error(t, err)
}

func TestStock(t *testing.T) {
	svc := newTestService(t)

	stock, err := svc.Stock(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Available)
	assert.True(t, stock.InStock())

	stock, err = svc.Stock(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, stock.InStock())

	_, err = svc.Stock(context.Background(), "missing")
	var serviceErr *apiclient.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, 404, serviceErr.Status)
}
