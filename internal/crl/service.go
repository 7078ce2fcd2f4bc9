// Package crl retrieves and caches the certificate revocation list consumed
// by the crypto provider.
package crl

import (
	"context"
	"sync"
	"time"

	"github.com/paperbound/lcp-client/pkg/config"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
	"github.com/paperbound/lcp-client/pkg/logger"
)

type fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SharedCache is an optional process-shared cache consulted before the
// network. Implementations must be safe for concurrent use.
type SharedCache interface {
	Get(ctx context.Context) ([]byte, error)
	Set(ctx context.Context, crl []byte, ttl time.Duration) error
}

// Service caches the revocation list in memory for the configured TTL and
// optionally shares it across processes.
type Service struct {
	fetcher fetcher
	shared  SharedCache
	logg    *logger.Logger
	url     string
	ttl     time.Duration

	mu        sync.Mutex
	cached    []byte
	fetchedAt time.Time
	now       func() time.Time
}

func New(cfg config.CRLConfig, fetch fetcher, shared SharedCache, logg *logger.Logger) *Service {
	return &Service{
		fetcher: fetch,
		shared:  shared,
		logg:    logg,
		url:     cfg.URL,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Retrieve returns the current revocation list, serving cached bytes while
// they are fresh.
func (s *Service) Retrieve(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}

	if s.shared != nil {
		if data, err := s.shared.Get(ctx); err == nil && len(data) > 0 {
			s.cached = data
			s.fetchedAt = s.now()
			return data, nil
		} else if err != nil && s.logg != nil {
			s.logg.Warn(ctx, "shared crl cache unavailable")
		}
	}

	data, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		// A stale list beats no list: the crypto layer treats absence
		// as fatal at integrity time.
		if s.cached != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "crl refresh failed, serving stale list")
			}
			return s.cached, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "retrieve revocation list")
	}

	s.cached = data
	s.fetchedAt = s.now()
	if s.shared != nil {
		if err := s.shared.Set(ctx, data, s.ttl); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "failed to publish crl to shared cache")
		}
	}
	return data, nil
}
