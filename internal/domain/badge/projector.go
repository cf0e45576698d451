// internal/domain/badge/projector.go
package badge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/domain/servercart"
	"github.com/your-org/bookstore-storefront/internal/domain/session"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

const fetchTimeout = 10 * time.Second

// GuestCounter counts the guest cart
type GuestCounter interface {
	Count(ctx context.Context) (int, error)
}

// ServerCart fetches the authenticated cart
type ServerCart interface {
	Get(ctx context.Context) ([]servercart.Line, error)
}

// Subscriber is the part of the event bus the projector listens on
type Subscriber interface {
	Subscribe(topic events.Topic, handler events.Handler) func()
}

// Projector keeps the cart badge number. While anonymous it mirrors the
// guest cart; while authenticated it mirrors the last fetched server cart.
// The two sources are never combined.
type Projector struct {
	guest  GuestCounter
	server ServerCart
	logger logrus.FieldLogger

	mu            sync.Mutex
	value         int
	authenticated bool
	authority     uint64
	started       uint64
	applied       uint64
	observers     map[int]func(int)
	nextObserver  int
	unsubscribe   []func()
}

// NewProjector creates a projector listening on bus. authenticated is the
// session state at creation; call Refresh to compute the first value.
func NewProjector(bus Subscriber, guest GuestCounter, server ServerCart, authenticated bool, logger logrus.FieldLogger) *Projector {
	p := &Projector{
		guest:         guest,
		server:        server,
		logger:        logger.WithField("component", "badge"),
		authenticated: authenticated,
		observers:     make(map[int]func(int)),
	}

	p.unsubscribe = []func(){
		bus.Subscribe(events.TopicGuestCartChanged, p.onGuestChange),
		bus.Subscribe(events.TopicStorage, p.onGuestChange),
		bus.Subscribe(events.TopicServerCartChanged, p.onServerChange),
		bus.Subscribe(events.TopicSessionChanged, p.onSessionChange),
	}
	return p
}

// Value returns the current badge number
func (p *Projector) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Authenticated reports which source the badge currently follows
func (p *Projector) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// Subscribe registers fn to be called with every new value
func (p *Projector) Subscribe(fn func(int)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextObserver
	p.nextObserver++
	p.observers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

// Refresh recomputes the value from the current authority
func (p *Projector) Refresh(ctx context.Context) {
	p.mu.Lock()
	authority := p.authority
	authenticated := p.authenticated
	p.started++
	seq := p.started
	p.mu.Unlock()

	var value int
	if authenticated {
		value = p.serverCount(ctx)
	} else {
		value = p.guestCount(ctx)
	}

	p.mu.Lock()
	// A refresh begun under another authority, or overtaken by a newer one,
	// must not overwrite the value.
	if authority != p.authority || seq < p.applied {
		p.mu.Unlock()
		return
	}
	p.applied = seq
	changed := p.value != value
	p.value = value
	observers := p.observersLocked()
	p.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(value)
		}
	}
}

// Poll recomputes the guest count every interval until ctx is done. It
// covers writers that do not announce their changes. Ticks are ignored while
// authenticated.
func (p *Projector) Poll(ctx context.Context, interval time.Duration) {
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
			if !p.Authenticated() {
				p.Refresh(ctx)
			}
		}
	}
}

// Close stops listening for events
func (p *Projector) Close() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

func (p *Projector) onGuestChange(events.Event) {
	if p.Authenticated() {
		return
	}
	p.refreshDetached()
}

func (p *Projector) onServerChange(events.Event) {
	if !p.Authenticated() {
		return
	}
	p.refreshDetached()
}

func (p *Projector) onSessionChange(e events.Event) {
	state, ok := e.Payload.(session.State)
	if !ok {
		return
	}

	p.mu.Lock()
	p.authenticated = state.IsAuthenticated()
	p.authority++
	p.mu.Unlock()

	p.refreshDetached()
}

func (p *Projector) refreshDetached() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	p.Refresh(ctx)
}

func (p *Projector) guestCount(ctx context.Context) int {
	n, err := p.guest.Count(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to count guest cart")
		return 0
	}
	return n
}

func (p *Projector) serverCount(ctx context.Context) int {
	lines, err := p.server.Get(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to fetch server cart for badge")
		return 0
	}
	return servercart.Count(lines)
}

func (p *Projector) observersLocked() []func(int) {
	ids := make([]int, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(int), 0, len(ids))
	for _, id := range ids {
		out = append(out, p.observers[id])
	}
	return out
}
