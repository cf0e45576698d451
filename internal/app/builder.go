// internal/app/builder.go
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/domain/badge"
	"github.com/your-org/bookstore-storefront/internal/domain/catalog"
	"github.com/your-org/bookstore-storefront/internal/domain/guestcart"
	"github.com/your-org/bookstore-storefront/internal/domain/reconcile"
	"github.com/your-org/bookstore-storefront/internal/domain/servercart"
	"github.com/your-org/bookstore-storefront/internal/domain/session"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"github.com/your-org/bookstore-storefront/internal/pkg/events"
)

// Builder assembles storefronts
type Builder struct {
	Durable          storage.Backend
	Ephemeral        *storage.Memory
	API              *apiclient.Client
	Session          session.Options
	MergeConcurrency int
	BadgePoll        time.Duration
	Logger           logrus.FieldLogger
	Now              func() time.Time
}

// Build creates the storefront of one browsing context. Durable state is
// scoped by visitorID, ephemeral state by contextID.
func (b *Builder) Build(ctx context.Context, contextID, visitorID string) *Storefront {
	now := b.Now
	if now == nil {
		now = time.Now
	}
	logger := b.Logger.WithFields(logrus.Fields{
		"context_id": contextID,
		"visitor_id": visitorID,
	})

	bus := events.NewBus()
	ephemeral := b.Ephemeral.Area(contextID)

	guest := guestcart.NewStore(b.Durable.Area(visitorID), bus, logger)
	manager := session.NewManager(b.Session, ephemeral, bus, logger)
	cart := servercart.NewClient(b.API.WithTokens(manager), bus)

	sf := &Storefront{
		ContextID: contextID,
		VisitorID: visitorID,
		Bus:       bus,
		Guest:     guest,
		Session:   manager,
		Cart:      cart,
		Catalog:   catalog.NewService(b.API.WithTokens(apiclient.NoToken)),
		Reconcile: reconcile.NewController(manager, guest, cart, logger, b.MergeConcurrency),
		Badge:     badge.NewProjector(bus, guest, cart, false, logger),
		logger:    logger,
		ephemeral: b.Ephemeral,
		lastSeen:  now(),
	}
	sf.Badge.Refresh(ctx)

	if b.BadgePoll > 0 {
		pollCtx, cancel := context.WithCancel(context.Background())
		sf.stopPoll = cancel
		go sf.Badge.Poll(pollCtx, b.BadgePoll)
	}
	return sf
}

// NewBuilder wires a builder from the application config over a durable
// backend
func NewBuilder(cfg *config.Config, durable storage.Backend, logger logrus.FieldLogger) *Builder {
	return &Builder{
		Durable:   durable,
		Ephemeral: storage.NewMemory(),
		API:       apiclient.New(cfg.Backend.BaseURL, &http.Client{Timeout: cfg.Backend.Timeout}, nil),
		Session:   session.OptionsFromConfig(cfg),
		BadgePoll: cfg.Badge.PollInterval,
		Logger:    logger,
	}
}
