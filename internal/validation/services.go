package validation

import (
	"context"

	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/passphrase"
	"github.com/paperbound/lcp-client/internal/status"
)

// NetworkFetcher performs a single-shot HTTP GET. Non-200 responses surface
// as errors; retry policy belongs to implementations.
type NetworkFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CRLService returns the current certificate revocation list. Caching is
// the implementation's concern.
type CRLService interface {
	Retrieve(ctx context.Context) ([]byte, error)
}

// PassphraseService resolves the passphrase for a license, consulting a
// local store before driving the authenticator. An empty passphrase means
// the user cancelled; implementations convert their own errors to
// cancellation.
type PassphraseService interface {
	Request(ctx context.Context, lic *license.Document, auth passphrase.Authenticator) (string, error)
}

// DeviceService reports the device activation for a license. It returns
// fresh Status Document bytes when the server replies with them, nil
// otherwise.
type DeviceService interface {
	RegisterLicense(ctx context.Context, lic *license.Document, link *status.Link) ([]byte, error)
}

// LicenseRepository persists the latest license bytes locally. Writes are
// idempotent; failures never affect the validation outcome.
type LicenseRepository interface {
	AddLicense(ctx context.Context, lic *license.Document) error
}
