package validation

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/passphrase"
	"github.com/paperbound/lcp-client/pkg/logger"
	"github.com/paperbound/lcp-client/pkg/metrics"
)

// The probe license ships with the binary. A crypto provider that accepts
// it is a production build and may validate every published profile; a
// test build only accepts the basic profile.
//
//go:embed assets/prod-license.lcpl
var productionProbeLicense []byte

const productionProbePassphrase = "7B7602FEFD4DD24F86EEEA7425962191D9A98B1C0D2CA9F6F09B1D8CE45C2E28"

// Params wires the validator's collaborators. Network, CRL, Passphrases,
// Devices, and Crypto are required; the rest are optional.
type Params struct {
	Network     NetworkFetcher
	CRL         CRLService
	Passphrases PassphraseService
	Devices     DeviceService
	Crypto      drm.Crypto

	Repository    LicenseRepository
	Authenticator passphrase.Authenticator

	// OnLicenseValidated runs exactly once per distinct license payload
	// seen during a validate call. Callers use it to write fresh license
	// bytes back into the originating container. An error is fatal.
	OnLicenseValidated func(*license.Document) error

	Logger  *logger.Logger
	Metrics *metrics.ValidationMetrics
}

// Validator validates one license at a time. Construct one instance per
// license to validate several in parallel; a single instance is driven by
// one caller goroutine.
type Validator struct {
	network            NetworkFetcher
	crl                CRLService
	passphrases        PassphraseService
	devices            DeviceService
	crypto             drm.Crypto
	repo               LicenseRepository
	onLicenseValidated func(*license.Document) error
	logg               *logger.Logger
	metrics            *metrics.ValidationMetrics

	machine    *machine
	observers  *observerRegistry
	production bool
	now        func() time.Time

	mu            sync.Mutex
	authenticator passphrase.Authenticator
	seenPayloads  map[[32]byte]bool
	terminal      bool
	lastDocuments *ValidatedDocuments
	lastErr       error
	startedAt     time.Time
}

func New(params Params) (*Validator, error) {
	if params.Network == nil {
		return nil, fmt.Errorf("network fetcher required")
	}
	if params.CRL == nil {
		return nil, fmt.Errorf("crl service required")
	}
	if params.Passphrases == nil {
		return nil, fmt.Errorf("passphrase service required")
	}
	if params.Devices == nil {
		return nil, fmt.Errorf("device service required")
	}
	if params.Crypto == nil {
		return nil, fmt.Errorf("crypto provider required")
	}

	v := &Validator{
		network:            params.Network,
		crl:                params.CRL,
		passphrases:        params.Passphrases,
		devices:            params.Devices,
		crypto:             params.Crypto,
		repo:               params.Repository,
		onLicenseValidated: params.OnLicenseValidated,
		logg:               params.Logger,
		metrics:            params.Metrics,
		observers:          &observerRegistry{},
		authenticator:      params.Authenticator,
		seenPayloads:       make(map[[32]byte]bool),
		now:                time.Now,
	}
	v.machine = newMachine(v.enterState, params.Logger)
	v.production = v.detectProduction()
	return v, nil
}

// detectProduction probes the crypto provider with the embedded production
// license and its shipped passphrase.
func (v *Validator) detectProduction() bool {
	found, err := v.crypto.FindOneValidPassphrase(context.Background(), productionProbeLicense, []string{productionProbePassphrase})
	return err == nil && found == productionProbePassphrase
}

// Production reports whether the crypto provider is a production build.
func (v *Validator) Production() bool {
	return v.production
}

// Seed is the tagged input to a validate call: raw license bytes, or raw
// status bytes for a refresh.
type Seed struct {
	kind seedKind
	data []byte
}

type seedKind int

const (
	seedLicense seedKind = iota
	seedStatus
)

// LicenseSeed tags raw License Document bytes.
func LicenseSeed(data []byte) Seed {
	return Seed{kind: seedLicense, data: data}
}

// StatusSeed tags raw Status Document bytes. A status seed only has effect
// once the machine reached its valid state; it re-runs status validation
// with the fresh bytes.
func StatusSeed(data []byte) Seed {
	return Seed{kind: seedStatus, data: data}
}

// Validate drives the machine from the seed until a terminal state, the
// start state (passphrase cancellation), or an ignored event. The observer
// is enrolled with the once-only policy and receives the outcome; both
// arguments are nil when the user cancelled the passphrase prompt.
func (v *Validator) Validate(ctx context.Context, seed Seed, observer Observer) {
	v.mu.Lock()
	v.seenPayloads = make(map[[32]byte]bool)
	v.startedAt = v.now()
	if seed.kind == seedLicense {
		v.terminal = false
		v.lastDocuments = nil
		v.lastErr = nil
	}
	v.mu.Unlock()

	v.observers.add(observer, PolicyOnce)

	switch seed.kind {
	case seedLicense:
		// A fresh license restarts a finished machine.
		v.machine.restart()
		v.machine.raise(ctx, eventRetrievedLicenseData{data: seed.data})
	case seedStatus:
		v.machine.raise(ctx, eventRetrievedStatusData{data: seed.data})
	}
}

// RefreshStatus injects pushed Status Document bytes. It only has effect
// once the machine reached its valid state.
func (v *Validator) RefreshStatus(ctx context.Context, data []byte, observer Observer) {
	v.Validate(ctx, StatusSeed(data), observer)
}

// Subscribe enrolls a long-lived watcher. When the machine is already
// terminal the observer is invoked synchronously with the last outcome, and
// a once-only observer is then not enrolled.
func (v *Validator) Subscribe(observer Observer, policy Policy) {
	if observer == nil {
		return
	}
	v.mu.Lock()
	terminal := v.terminal
	documents := v.lastDocuments
	err := v.lastErr
	v.mu.Unlock()

	if terminal {
		observer(documents, err)
		if policy == PolicyOnce {
			return
		}
	}
	v.observers.add(observer, policy)
}

func (v *Validator) finish(ctx context.Context, documents *ValidatedDocuments, err error) {
	v.mu.Lock()
	v.terminal = true
	v.lastDocuments = documents
	v.lastErr = err
	elapsed := v.now().Sub(v.startedAt)
	v.mu.Unlock()

	switch {
	case err != nil:
		v.metrics.ObserveValidation(metrics.OutcomeFailure, elapsed)
		if v.logg != nil {
			v.logg.Error(ctx, "license validation failed", err)
		}
	case documents != nil && documents.StatusError() != nil:
		v.metrics.ObserveValidation(metrics.OutcomeStatusError, elapsed)
		if v.logg != nil {
			v.logg.Info(ctx, "license valid but not usable")
		}
	default:
		v.metrics.ObserveValidation(metrics.OutcomeValid, elapsed)
		if v.logg != nil {
			v.logg.Info(ctx, "license validated")
		}
	}

	v.observers.notify(documents, err)
}

// cancelled runs when a passphrase cancellation returns the machine to its
// start state. Observers get a (nil, nil) notification so the caller can
// retry with different authentication on the same machine.
func (v *Validator) cancelled(ctx context.Context) {
	v.mu.Lock()
	v.terminal = false
	v.lastDocuments = nil
	v.lastErr = nil
	elapsed := v.now().Sub(v.startedAt)
	v.mu.Unlock()

	v.metrics.ObserveValidation(metrics.OutcomeCancelled, elapsed)
	if v.logg != nil {
		v.logg.Info(ctx, "passphrase prompt cancelled")
	}
	v.observers.notify(nil, nil)
}

// SetAuthenticator replaces the interactive prompt used by subsequent
// passphrase requests, so a retry after cancellation can change it.
func (v *Validator) SetAuthenticator(auth passphrase.Authenticator) {
	v.mu.Lock()
	v.authenticator = auth
	v.mu.Unlock()
}

func (v *Validator) currentAuthenticator() passphrase.Authenticator {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.authenticator
}
