package app

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/domain/session"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
	"github.com/your-org/bookstore-storefront/internal/testutil"
	"golang.org/x/oauth2"
)

const clientID = "bookstore-web"

type harness struct {
	ecom     *testutil.Ecom
	idp      *testutil.IDP
	durable  *storage.Memory
	builder  *Builder
	registry *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ecom := testutil.NewEcom(
		testutil.FakeBook{ID: "A", Title: "Book A", Price: decimal.RequireFromString("9.99"), Stock: 3},
		testutil.FakeBook{ID: "B", Title: "Book B", Price: decimal.RequireFromString("19.99"), Stock: 1},
	)
	t.Cleanup(ecom.Close)

	idp := testutil.NewIDP(clientID)
	t.Cleanup(idp.Close)
	idp.OnIssue = func(access, subject string) { ecom.Grant(access, subject) }

	logger, _ := logtest.NewNullLogger()
	durable := storage.NewMemory()
	builder := &Builder{
		Durable:   durable,
		Ephemeral: storage.NewMemory(),
		API:       apiclient.New(ecom.URL(), ecom.Server.Client(), nil),
		Session: session.Options{
			OAuth2: oauth2.Config{
				ClientID: clientID,
				Endpoint: oauth2.Endpoint{
					AuthURL:   idp.AuthURL(),
					TokenURL:  idp.TokenURL(),
					AuthStyle: oauth2.AuthStyleInParams,
				},
				RedirectURL: "http://localhost:30000/callback",
			},
			EndSessionURL: idp.EndSessionURL(),
			SecureOrigin:  "http://localhost:30000",
			HTTPClient:    idp.Server.Client(),
		},
		Logger: logger,
	}

	registry := NewRegistry(builder, 30*time.Minute, logger)
	t.Cleanup(registry.Close)

	return &harness{
		ecom:     ecom,
		idp:      idp,
		durable:  durable,
		builder:  builder,
		registry: registry,
	}
}

func (h *harness) login(t *testing.T, sf *Storefront, subject, returnPath string) string {
	t.Helper()
	ctx := context.Background()

	origin, _ := url.Parse("http://localhost:30000")
	redirect, err := sf.Session.Login(ctx, returnPath, origin)
	require.NoError(t, err)
	params, err := h.idp.Authorize(redirect.URL, testutil.Identity{Subject: subject, Email: subject + "@example.com"})
	require.NoError(t, err)

	res, err := sf.HandleCallback(ctx, params)
	require.NoError(t, err)
	return res.Destination
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
