// Package testutil provides in-process fakes of the services the storefront
// talks to: the ecom/inventory REST backend and the OIDC identity provider.
// Both run on httptest servers so the production HTTP clients are exercised
// unchanged.
package testutil
