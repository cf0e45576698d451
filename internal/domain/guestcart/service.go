// internal/domain/guestcart/service.go
package guestcart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

// Store is the cart of an anonymous visitor, kept in one durable slot.
// Writes through one Store are serialized. Writers in other contexts of the
// same visitor are not coordinated; the last write wins.
type Store struct {
	mu     sync.Mutex
	area   storage.Area
	events events.Publisher
	logger logrus.FieldLogger
}

// NewStore creates a guest cart store over a durable area
func NewStore(area storage.Area, publisher events.Publisher, logger logrus.FieldLogger) *Store {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Store{
		area:   area,
		events: publisher,
		logger: logger.WithField("component", "guest_cart"),
	}
}

// Read returns the current lines. A slot that does not parse is logged and
// read as an empty cart.
func (s *Store) Read(ctx context.Context) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Add puts one unit of a product in the cart
func (s *Store) Add(ctx context.Context, productID, title string, price decimal.Decimal) ([]Line, error) {
	if productID == "" {
		return nil, fmt.Errorf("product ID is required")
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative")
	}

	return s.update(ctx, func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity++
				return lines
			}
		}
		return append(lines, Line{
			ProductID: productID,
			Title:     title,
			Price:     price,
			Quantity:  1,
		})
	})
}

// AdjustQuantity applies delta to a product's quantity and drops lines that
// reach zero. Unknown products leave the cart untouched.
func (s *Store) AdjustQuantity(ctx context.Context, productID string, delta int) ([]Line, error) {
	return s.update(ctx, func(lines []Line) []Line {
		kept := lines[:0]
		for _, l := range lines {
			if l.ProductID == productID {
				l.Quantity += delta
			}
			if l.Quantity > 0 {
				kept = append(kept, l)
			}
		}
		return kept
	})
}

// Clear removes every line
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.area.RemoveItem(ctx, StorageKey)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear guest cart: %w", err)
	}
	s.events.Publish(events.TopicGuestCartChanged, 0)
	return nil
}

// Count returns the number of units in the cart
func (s *Store) Count(ctx context.Context) (int, error) {
	lines, err := s.Read(ctx)
	if err != nil {
		return 0, err
	}
	return Count(lines), nil
}

// Total returns the cart value
func (s *Store) Total(ctx context.Context) (decimal.Decimal, error) {
	lines, err := s.Read(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(lines), nil
}

// update runs one read-modify-write under the store lock. The change event
// is published after the lock is released so handlers may read the cart.
func (s *Store) update(ctx context.Context, apply func([]Line) []Line) ([]Line, error) {
	s.mu.Lock()
	lines, err := s.read(ctx)
	if err == nil {
		lines = apply(lines)
		err = s.save(ctx, lines)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.TopicGuestCartChanged, Count(lines))
	return lines, nil
}

func (s *Store) read(ctx context.Context) ([]Line, error) {
	raw, err := s.area.GetItem(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []Line{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest cart: %w", err)
	}

	lines, err := Decode(raw)
	if err != nil {
		s.logger.WithError(err).WithField("key", StorageKey).Warn("Guest cart slot is corrupt, treating as empty")
		return []Line{}, nil
	}
	return lines, nil
}

func (s *Store) save(ctx context.Context, lines []Line) error {
	raw, err := Encode(lines)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}
	if err := s.area.SetItem(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("failed to save guest cart: %w", err)
	}
	return nil
}
