// internal/domain/servercart/entity.go
package servercart

import (
	"github.com/shopspring/decimal"
)

// Book is the product summary embedded in a server cart line
type Book struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// Line is one row of the server-side cart. The snapshot is a cache of the
// last fetch and is never authoritative between fetches.
type Line struct {
	ID       string `json:"id"`
	Book     Book   `json:"book"`
	Quantity int    `json:"quantity"`
}

// Subtotal returns price times quantity
func (l Line) Subtotal() decimal.Decimal {
	return l.Book.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the result of a checkout
type Order struct {
	ID     string          `json:"id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

// AddRequest is the body of POST /ecom/cart
type AddRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

// UpdateRequest is the body of PUT /ecom/cart/{id}
type UpdateRequest struct {
	Quantity int `json:"quantity"`
}

// Count sums quantities
func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Total sums subtotals
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
