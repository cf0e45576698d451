// internal/domain/guestcart/entity.go
package guestcart

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// StorageKey is the durable slot holding the guest cart
const StorageKey = "bookstore_guest_cart"

// Line is one product in an anonymous visitor's cart
type Line struct {
	ProductID string
	Title     string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal returns price times quantity
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// lineRecord is the persisted shape. Price stays a JSON number so records
// written by earlier clients keep parsing.
type lineRecord struct {
	BookID   string      `json:"bookId"`
	Title    string      `json:"title"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

// MarshalJSON writes the persisted record shape
func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineRecord{
		BookID:   l.ProductID,
		Title:    l.Title,
		Price:    json.Number(l.Price.String()),
		Quantity: l.Quantity,
	})
}

// UnmarshalJSON reads the persisted record shape
func (l *Line) UnmarshalJSON(data []byte) error {
	var rec lineRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	price := decimal.Zero
	if rec.Price != "" {
		p, err := decimal.NewFromString(rec.Price.String())
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", rec.Price, err)
		}
		price = p
	}

	*l = Line{
		ProductID: rec.BookID,
		Title:     rec.Title,
		Price:     price,
		Quantity:  rec.Quantity,
	}
	return nil
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

// Encode serializes lines into the slot format
func Encode(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses the slot format. Lines with an empty product id or a
// quantity below one are dropped and repeated ids are folded into the first
// occurrence, so the result always satisfies the cart invariants.
func Decode(raw string) ([]Line, error) {
	var parsed []Line
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(parsed))
	index := make(map[string]int, len(parsed))
	for _, l := range parsed {
		if l.ProductID == "" || l.Quantity < 1 || l.Price.IsNegative() {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			lines[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(lines)
		lines = append(lines, l)
	}
	return lines, nil
}
