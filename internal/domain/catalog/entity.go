// internal/domain/catalog/entity.go
package catalog

import "github.com/shopspring/decimal"

// Book is a catalog entry
type Book struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	CoverURL      *string         `json:"coverUrl"`
	Genre         *string         `json:"genre"`
	ISBN          *string         `json:"isbn"`
	PublishedYear *int            `json:"publishedYear"`
}

// Page is one page of a paged backend listing
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
	Size          int `json:"size"`
}

// Stock is the availability of one book
type Stock struct {
	BookID    string `json:"bookId"`
	Available int    `json:"available"`
}

// InStock reports whether at least one copy can be sold
func (s Stock) InStock() bool {
	return s.Available > 0
}

// ListRequest represents catalog list query parameters
type ListRequest struct {
	Page int `form:"page,default=0"`
	Size int `form:"size,default=20"`
}

// SearchRequest represents catalog search query parameters
type SearchRequest struct {
	Query string `form:"q" binding:"required"`
	Page  int    `form:"page,default=0"`
}
