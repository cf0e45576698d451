package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_ReusesContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.registry.Get(ctx, "ctx-1", "visitor-1")
	again := h.registry.Get(ctx, "ctx-1", "visitor-1")
	other := h.registry.Get(ctx, "ctx-2", "visitor-1")

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, h.registry.Len())
}

func TestRegistry_VisitorChangeStartsOver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.registry.Get(ctx, "ctx-1", "visitor-1")
	second := h.registry.Get(ctx, "ctx-1", "visitor-2")

	assert.NotSame(t, first, second)
	assert.Equal(t, "visitor-2", second.VisitorID)
	assert.Equal(t, 1, h.registry.Len())
}

func TestRegistry_SiblingsSeeGuestCartChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tabA := h.registry.Get(ctx, "ctx-a", "visitor-1")
	tabB := h.registry.Get(ctx, "ctx-b", "visitor-1")
	stranger := h.registry.Get(ctx, "ctx-c", "visitor-2")

	var storageEvents int
	tabB.Bus.Subscribe(events.TopicStorage, func(events.Event) { storageEvents++ })
	var strangerEvents int
	stranger.Bus.Subscribe(events.TopicStorage, func(events.Event) { strangerEvents++ })

	require.NoError(t, tabA.AddToCart(ctx, "A", "Book A", price("9.99")))
	require.NoError(t, tabA.AddToCart(ctx, "A", "Book A", price("9.99")))

	assert.Equal(t, 2, tabA.Badge.Value())
	assert.Equal(t, 2, tabB.Badge.Value(), "sibling badge follows the shared durable cart")
	assert.Equal(t, 2, storageEvents)
	assert.Zero(t, strangerEvents)
	assert.Zero(t, stranger.Badge.Value())
}

func TestRegistry_SiblingSessionsAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tabA := h.registry.Get(ctx, "ctx-a", "visitor-1")
	tabB := h.registry.Get(ctx, "ctx-b", "visitor-1")
	require.NoError(t, tabA.AddToCart(ctx, "A", "Book A", price("9.99")))

	h.login(t, tabA, "reader", "/")

	assert.True(t, tabA.Authenticated(ctx))
	assert.False(t, tabB.Authenticated(ctx), "sessions are per context")
	assert.Zero(t, tabB.Badge.Value(), "merge cleared the shared guest cart")
}

func TestRegistry_SweepEvictsIdleContexts(t *testing.T) {
	h := newHarness(t)
	clock := &manualClock{now: time.Now()}
	h.builder.Now = clock.Now
	registry := NewRegistry(h.builder, time.Minute, h.builder.Logger)
	t.Cleanup(registry.Close)
	ctx := context.Background()

	registry.Get(ctx, "ctx-idle", "visitor-1")
	clock.Advance(45 * time.Second)
	registry.Get(ctx, "ctx-busy", "visitor-1")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, registry.Sweep())
	_, ok := registry.Lookup("ctx-idle")
	assert.False(t, ok)
	_, ok = registry.Lookup("ctx-busy")
	assert.True(t, ok)
}

func TestRegistry_RemoveDropsEphemeralState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sf := h.registry.Get(ctx, "ctx-1", "visitor-1")

	_, err := sf.Session.Login(ctx, "/cart", nil)
	require.NoError(t, err)
	keys, err := h.builder.Ephemeral.Area("ctx-1").Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	h.registry.Remove("ctx-1")

	keys, err = h.builder.Ephemeral.Area("ctx-1").Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Zero(t, h.registry.Len())
}

func TestRegistry_CapEvictsLeastRecentlyUsed(t *testing.T) {
	h := newHarness(t)
	clock := &manualClock{now: time.Now()}
	h.builder.Now = clock.Now
	registry := NewRegistry(h.builder, time.Hour, h.builder.Logger)
	registry.SetMaxContexts(2)
	t.Cleanup(registry.Close)
	ctx := context.Background()

	registry.Get(ctx, "ctx-1", "visitor-1")
	clock.Advance(time.Second)
	registry.Get(ctx, "ctx-2", "visitor-2")
	clock.Advance(time.Second)
	registry.Get(ctx, "ctx-1", "visitor-1")
	clock.Advance(time.Second)

	registry.Get(ctx, "ctx-3", "visitor-3")

	assert.Equal(t, 2, registry.Len())
	_, ok := registry.Lookup("ctx-2")
	assert.False(t, ok, "least recently used context is evicted")
	_, ok = registry.Lookup("ctx-1")
	assert.True(t, ok)
	_, ok = registry.Lookup("ctx-3")
	assert.True(t, ok)
}
