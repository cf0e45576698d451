// internal/app/registry.go
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/domain/guestcart"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

// Registry holds the live browsing contexts. It relays durable writes of
// one context to the other contexts of the same visitor as storage events
// and evicts contexts that have gone idle.
type Registry struct {
	builder *Builder
	idleTTL time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time

	mu          sync.Mutex
	contexts    map[string]*Storefront
	maxContexts int
}

// NewRegistry creates a registry. Contexts unused for idleTTL are evicted
// by Sweep.
func NewRegistry(builder *Builder, idleTTL time.Duration, logger logrus.FieldLogger) *Registry {
	now := builder.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		builder:  builder,
		idleTTL:  idleTTL,
		logger:   logger.WithField("component", "registry"),
		now:      now,
		contexts: make(map[string]*Storefront),
	}
}

// SetMaxContexts caps the number of live contexts. Creating a context past
// the cap evicts the least recently used one. n <= 0 removes the cap.
func (r *Registry) SetMaxContexts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxContexts = n
}

// Get returns the storefront of contextID, creating it on first use. A
// context ID presented with a different visitor ID starts over.
func (r *Registry) Get(ctx context.Context, contextID, visitorID string) *Storefront {
	r.mu.Lock()
	sf, ok := r.contexts[contextID]
	if ok && sf.VisitorID == visitorID {
		r.mu.Unlock()
		sf.Touch(r.now())
		return sf
	}
	if ok {
		delete(r.contexts, contextID)
	}
	r.mu.Unlock()

	if ok {
		sf.Close()
	}

	created := r.builder.Build(ctx, contextID, visitorID)
	created.Bus.Subscribe(events.TopicGuestCartChanged, func(events.Event) {
		r.broadcast(created, guestcart.StorageKey)
	})

	r.mu.Lock()
	if existing, raced := r.contexts[contextID]; raced && existing.VisitorID == visitorID {
		r.mu.Unlock()
		created.Close()
		existing.Touch(r.now())
		return existing
	}
	var evicted []*Storefront
	if existing, ok := r.contexts[contextID]; ok {
		evicted = append(evicted, existing)
	}
	r.contexts[contextID] = created
	evicted = append(evicted, r.evictOverflowLocked(created)...)
	r.mu.Unlock()

	for _, sf := range evicted {
		sf.Close()
	}
	if len(evicted) > 0 {
		r.logger.WithField("evicted", len(evicted)).Debug("Evicted browsing contexts to make room")
	}

	r.logger.WithFields(logrus.Fields{
		"context_id": contextID,
		"visitor_id": visitorID,
	}).Debug("Browsing context created")
	return created
}

// Lookup returns a live storefront without creating one
func (r *Registry) Lookup(contextID string) (*Storefront, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sf, ok := r.contexts[contextID]
	return sf, ok
}

// Remove ends a context
func (r *Registry) Remove(contextID string) {
	r.mu.Lock()
	sf, ok := r.contexts[contextID]
	delete(r.contexts, contextID)
	r.mu.Unlock()

	if ok {
		sf.Close()
	}
}

// Len returns the number of live contexts
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

// Sweep evicts contexts idle for longer than the TTL and returns how many
// were evicted
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Storefront
	for id, sf := range r.contexts {
		if sf.LastSeen().Before(cutoff) {
			idle = append(idle, sf)
			delete(r.contexts, id)
		}
	}
	r.mu.Unlock()

	for _, sf := range idle {
		sf.Close()
	}
	if len(idle) > 0 {
		r.logger.WithField("evicted", len(idle)).Info("Evicted idle browsing contexts")
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close ends every context
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Storefront, 0, len(r.contexts))
	for _, sf := range r.contexts {
		all = append(all, sf)
	}
	r.contexts = make(map[string]*Storefront)
	r.mu.Unlock()

	for _, sf := range all {
		sf.Close()
	}
}

// evictOverflowLocked removes least recently used contexts, other than
// keep, until the cap holds
func (r *Registry) evictOverflowLocked(keep *Storefront) []*Storefront {
	if r.maxContexts <= 0 {
		return nil
	}
	var evicted []*Storefront
	for len(r.contexts) > r.maxContexts {
		var oldestID string
		var oldest *Storefront
		for id, sf := range r.contexts {
			if sf == keep {
				continue
			}
			if oldest == nil || sf.LastSeen().Before(oldest.LastSeen()) {
				oldestID, oldest = id, sf
			}
		}
		if oldest == nil {
			break
		}
		delete(r.contexts, oldestID)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (r *Registry) broadcast(origin *Storefront, key string) {
	r.mu.Lock()
	var siblings []*Storefront
	for _, sf := range r.contexts {
		if sf != origin && sf.VisitorID == origin.VisitorID {
			siblings = append(siblings, sf)
		}
	}
	r.mu.Unlock()

	for _, sf := range siblings {
		sf.Bus.Publish(events.TopicStorage, key)
	}
}
