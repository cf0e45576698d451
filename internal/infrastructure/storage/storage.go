// Package storage models the two browser storage areas a storefront context
// owns: a durable area shared by every context of one visitor, and an
// ephemeral area that dies with its browsing context.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetItem when the key has no value
var ErrNotFound = errors.New("storage: key not found")

// Area is a string key/value slot store scoped to one visitor or context
type Area interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Backend hands out areas by scope id
type Backend interface {
	Area(scope string) Area
}
