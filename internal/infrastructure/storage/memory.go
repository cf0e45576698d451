package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps areas in process memory. It backs the ephemeral
// per-context area and stands in for the durable area in development.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		scopes: make(map[string]map[string]string),
	}
}

// Area returns the area for scope
func (m *Memory) Area(scope string) Area {
	return &memoryArea{mem: m, scope: scope}
}

// Drop discards every key of scope
func (m *Memory) Drop(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, scope)
}

type memoryArea struct {
	mem   *Memory
	scope string
}

func (a *memoryArea) GetItem(_ context.Context, key string) (string, error) {
	a.mem.mu.RLock()
	defer a.mem.mu.RUnlock()

	value, ok := a.mem.scopes[a.scope][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (a *memoryArea) SetItem(_ context.Context, key, value string) error {
	a.mem.mu.Lock()
	defer a.mem.mu.Unlock()

	slots, ok := a.mem.scopes[a.scope]
	if !ok {
		slots = make(map[string]string)
		a.mem.scopes[a.scope] = slots
	}
	slots[key] = value
	return nil
}

func (a *memoryArea) RemoveItem(_ context.Context, key string) error {
	a.mem.mu.Lock()
	defer a.mem.mu.Unlock()

	if slots, ok := a.mem.scopes[a.scope]; ok {
		delete(slots, key)
		if len(slots) == 0 {
			delete(a.mem.scopes, a.scope)
		}
	}
	return nil
}

func (a *memoryArea) Keys(_ context.Context) ([]string, error) {
	a.mem.mu.RLock()
	defer a.mem.mu.RUnlock()

	keys := make([]string, 0, len(a.mem.scopes[a.scope]))
	for k := range a.mem.scopes[a.scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Scopes lists the scopes that hold at least one key
func (m *Memory) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scopes := make([]string, 0, len(m.scopes))
	for scope, slots := range m.scopes {
		if len(slots) > 0 {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes
}
