// Package passphrase resolves the user passphrase for a license, consulting
// the local store before falling back to an interactive prompt.
package passphrase

import (
	"context"

	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/pkg/logger"
)

// Hint carries everything an authenticator may show the user.
type Hint struct {
	LicenseID string
	Provider  string
	TextHint  string
	HintHref  string
}

// Authenticator drives an interactive passphrase prompt. An empty string
// means the user cancelled.
type Authenticator interface {
	RequestPassphrase(ctx context.Context, hint Hint) (string, error)
}

// Store is the local passphrase cache. Implementations must be safe for
// concurrent use.
type Store interface {
	PassphrasesForLicense(ctx context.Context, licenseID string) ([]string, error)
	PassphrasesForProvider(ctx context.Context, provider string) ([]string, error)
	SavePassphrase(ctx context.Context, licenseID, provider, passphrase string) error
}

// Service resolves passphrases. It never fails: every error degrades to a
// cancellation so the validation flow can return to its start state.
type Service struct {
	store  Store
	crypto drm.Crypto
	logg   *logger.Logger
}

func NewService(store Store, crypto drm.Crypto, logg *logger.Logger) *Service {
	return &Service{store: store, crypto: crypto, logg: logg}
}

// Request returns a passphrase accepted by the crypto provider for this
// license, or an empty string when the user cancelled.
func (s *Service) Request(ctx context.Context, lic *license.Document, auth Authenticator) (string, error) {
	if found := s.fromStore(ctx, lic); found != "" {
		return found, nil
	}
	if auth == nil {
		return "", nil
	}

	hint := Hint{
		LicenseID: lic.UUID,
		Provider:  lic.Provider,
		TextHint:  lic.Encryption.UserKey.TextHint,
	}
	if link := lic.Link(license.RelHint); link != nil {
		hint.HintHref = link.Href
	}

	for {
		if ctx.Err() != nil {
			return "", nil
		}
		entered, err := auth.RequestPassphrase(ctx, hint)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "passphrase prompt failed, treating as cancellation")
			}
			return "", nil
		}
		if entered == "" {
			return "", nil
		}
		found, err := s.crypto.FindOneValidPassphrase(ctx, lic.Raw(), []string{entered})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "passphrase probe failed, treating as cancellation")
			}
			return "", nil
		}
		if found == "" {
			continue
		}
		s.save(ctx, lic, found)
		return found, nil
	}
}

func (s *Service) fromStore(ctx context.Context, lic *license.Document) string {
	if s.store == nil {
		return ""
	}
	var candidates []string
	if byLicense, err := s.store.PassphrasesForLicense(ctx, lic.UUID); err == nil {
		candidates = append(candidates, byLicense...)
	}
	if byProvider, err := s.store.PassphrasesForProvider(ctx, lic.Provider); err == nil {
		candidates = append(candidates, byProvider...)
	}
	if len(candidates) == 0 {
		return ""
	}
	found, err := s.crypto.FindOneValidPassphrase(ctx, lic.Raw(), dedupe(candidates))
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "stored passphrase probe failed")
		}
		return ""
	}
	return found
}

func (s *Service) save(ctx context.Context, lic *license.Document, passphrase string) {
	if s.store == nil {
		return
	}
	if err := s.store.SavePassphrase(ctx, lic.UUID, lic.Provider, passphrase); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "failed to cache passphrase")
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
