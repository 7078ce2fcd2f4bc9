// Package device reports license activations to the status server. A stable
// device id is minted once per install and reused for every registration.
package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
	"github.com/paperbound/lcp-client/pkg/config"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
	"github.com/paperbound/lcp-client/pkg/logger"
)

// RegistrationStore persists which licenses this device already activated,
// so a re-validation does not re-register.
type RegistrationStore interface {
	IsDeviceRegistered(ctx context.Context, licenseID string) (bool, error)
	SetDeviceRegistered(ctx context.Context, licenseID string) error
}

type Service struct {
	client *http.Client
	store  RegistrationStore
	logg   *logger.Logger
	name   string
	id     string

	mu         sync.Mutex
	registered map[string]bool
}

func NewService(cfg config.DeviceConfig, httpCfg config.HTTPConfig, store RegistrationStore, logg *logger.Logger) *Service {
	name := cfg.Name
	if name == "" {
		if hostname, err := os.Hostname(); err == nil {
			name = hostname
		} else {
			name = "unknown device"
		}
	}
	return &Service{
		client:     &http.Client{Timeout: httpCfg.Timeout},
		store:      store,
		logg:       logg,
		name:       name,
		id:         loadOrCreateDeviceID(),
		registered: make(map[string]bool),
	}
}

// ID returns the stable device identifier.
func (s *Service) ID() string {
	return s.id
}

// Name returns the device name reported to the status server.
func (s *Service) Name() string {
	return s.name
}

// RegisterLicense activates this device for the license against the given
// register link. It returns fresh Status Document bytes when the server
// replies with them, and (nil, nil) when the device was already registered.
func (s *Service) RegisterLicense(ctx context.Context, lic *license.Document, link *status.Link) ([]byte, error) {
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register link missing")
	}
	if s.alreadyRegistered(ctx, lic.UUID) {
		return nil, nil
	}

	target, err := s.registrationURL(link)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "build registration request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "register device")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeNetwork, fmt.Sprintf("registration rejected with status %d", resp.StatusCode))
	}

	s.markRegistered(ctx, lic.UUID)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "read registration response")
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func (s *Service) alreadyRegistered(ctx context.Context, licenseID string) bool {
	s.mu.Lock()
	if s.registered[licenseID] {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	if s.store == nil {
		return false
	}
	registered, err := s.store.IsDeviceRegistered(ctx, licenseID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "registration store lookup failed")
		}
		return false
	}
	return registered
}

func (s *Service) markRegistered(ctx context.Context, licenseID string) {
	s.mu.Lock()
	s.registered[licenseID] = true
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.SetDeviceRegistered(ctx, licenseID); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "failed to persist device registration")
	}
}

var templateExpression = regexp.MustCompile(`\{\??[^}]*\}`)

func (s *Service) registrationURL(link *status.Link) (string, error) {
	href := link.Href
	if link.Templated {
		href = templateExpression.ReplaceAllString(href, "")
	}
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "register link is not a valid uri")
	}
	query := parsed.Query()
	query.Set("id", s.id)
	query.Set("name", s.name)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func loadOrCreateDeviceID() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return uuid.NewString()
	}
	path := filepath.Join(dir, "lcp-client", "device_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err == nil {
		_ = os.WriteFile(path, []byte(id), 0o600)
	}
	return id
}
