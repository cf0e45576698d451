// internal/domain/catalog/service.go
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service reads the public catalog and inventory
type Service struct {
	api *apiclient.Client
}

// NewService creates a catalog service
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// List returns one page of books ordered by title
func (s *Service) List(ctx context.Context, req ListRequest) (*Page[Book], error) {
	page, size := normalize(req.Page, req.Size)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", "title")

	var out Page[Book]
	if err := s.api.Get(ctx, "/ecom/books?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return withContent(&out), nil
}

// Search returns one page of books matching the query
func (s *Service) Search(ctx context.Context, req SearchRequest) (*Page[Book], error) {
	if req.Query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	page, _ := normalize(req.Page, DefaultPageSize)

	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("page", strconv.Itoa(page))

	var out Page[Book]
	if err := s.api.Get(ctx, "/ecom/books/search?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("failed to search books: %w", err)
	}
	return withContent(&out), nil
}

// Stock returns the availability of a book
func (s *Service) Stock(ctx context.Context, bookID string) (*Stock, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book ID is required")
	}

	var out Stock
	if err := s.api.Get(ctx, "/inven/stock/"+url.PathEscape(bookID), &out); err != nil {
		return nil, fmt.Errorf("failed to get stock for %s: %w", bookID, err)
	}
	if out.BookID == "" {
		out.BookID = bookID
	}
	return &out, nil
}

func normalize(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func withContent(p *Page[Book]) *Page[Book] {
	if p.Content == nil {
		p.Content = []Book{}
	}
	return p
}
