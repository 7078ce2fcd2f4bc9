package validation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/passphrase"
	"github.com/paperbound/lcp-client/internal/status"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

const testAcceptedPassphrase = "correct horse battery staple"

// licenseJSON builds License Document bytes. The rights window defaults to
// one year around the current time.
func licenseJSON(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	now := time.Now().UTC()
	doc := map[string]any{
		"provider": "https://provider.example",
		"id":       "lic-1",
		"issued":   now.Add(-24 * time.Hour).Format(time.RFC3339),
		"encryption": map[string]any{
			"profile": license.ProfileBasic,
			"user_key": map[string]any{
				"text_hint": "the usual one",
			},
		},
		"links": []map[string]any{
			{"rel": "hint", "href": "https://provider.example/hint"},
		},
		"rights": map[string]any{
			"start": now.Add(-365 * 24 * time.Hour).Format(time.RFC3339),
			"end":   now.Add(365 * 24 * time.Hour).Format(time.RFC3339),
		},
		"signature": map[string]any{
			"algorithm":   "alg",
			"certificate": "Y2VydA==",
			"value":       "c2ln",
		},
	}
	if mutate != nil {
		mutate(doc)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal license: %v", err)
	}
	return data
}

func statusJSON(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	doc := map[string]any{
		"id":      "lic-1",
		"status":  status.StatusActive,
		"message": "active",
	}
	if mutate != nil {
		mutate(doc)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	return data
}

func parseLicense(t *testing.T, data []byte) *license.Document {
	t.Helper()
	doc, err := license.Parse(data)
	if err != nil {
		t.Fatalf("parse license: %v", err)
	}
	return doc
}

func parseStatus(t *testing.T, data []byte) *status.Document {
	t.Helper()
	doc, err := status.Parse(data)
	if err != nil {
		t.Fatalf("parse status: %v", err)
	}
	return doc
}

type stubNetwork struct {
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func (s *stubNetwork) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls = append(s.calls, url)
	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	if data, ok := s.responses[url]; ok {
		return data, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNetwork, "unexpected status 404 fetching "+url)
}

type stubCRL struct {
	data []byte
	err  error
}

func (s *stubCRL) Retrieve(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.data == nil {
		return []byte("crl"), nil
	}
	return s.data, nil
}

// stubPassphrases scripts consecutive Request outcomes; an empty string is
// a cancellation. The last entry repeats once the script is exhausted.
type stubPassphrases struct {
	script []string
	calls  int
	auths  []passphrase.Authenticator
}

func (s *stubPassphrases) Request(ctx context.Context, lic *license.Document, auth passphrase.Authenticator) (string, error) {
	s.auths = append(s.auths, auth)
	idx := s.calls
	s.calls++
	if len(s.script) == 0 {
		return "", nil
	}
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx], nil
}

type stubDevices struct {
	// responses are returned per call; nil entries mean "registered, no
	// fresh status document". The last entry repeats.
	responses [][]byte
	err       error
	calls     int
}

func (s *stubDevices) RegisterLicense(ctx context.Context, lic *license.Document, link *status.Link) ([]byte, error) {
	idx := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, nil
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

type stubRepo struct {
	added []string
	err   error
}

func (s *stubRepo) AddLicense(ctx context.Context, lic *license.Document) error {
	if s.err != nil {
		return s.err
	}
	s.added = append(s.added, lic.UUID)
	return nil
}

type fakeContext struct{}

func (fakeContext) Decrypt(cipher []byte) ([]byte, error) { return cipher, nil }

// fakeCrypto accepts a single passphrase. When production is set it also
// accepts the embedded probe, which flips the validator into production
// mode.
type fakeCrypto struct {
	accept     string
	production bool
	created    int
}

func (f *fakeCrypto) FindOneValidPassphrase(ctx context.Context, licenseJSON []byte, candidates []string) (string, error) {
	for _, candidate := range candidates {
		if f.production && candidate == productionProbePassphrase {
			return candidate, nil
		}
		if candidate == f.accept {
			return candidate, nil
		}
	}
	return "", nil
}

func (f *fakeCrypto) CreateContext(ctx context.Context, licenseJSON []byte, pass string, crl []byte) (drm.Context, error) {
	if pass != f.accept {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "user key check failed")
	}
	f.created++
	return fakeContext{}, nil
}

type fixture struct {
	network     *stubNetwork
	crl         *stubCRL
	passphrases *stubPassphrases
	devices     *stubDevices
	repo        *stubRepo
	crypto      *fakeCrypto
}

func newFixture() *fixture {
	return &fixture{
		network:     &stubNetwork{responses: map[string][]byte{}, errs: map[string]error{}},
		crl:         &stubCRL{},
		passphrases: &stubPassphrases{script: []string{testAcceptedPassphrase}},
		devices:     &stubDevices{},
		repo:        &stubRepo{},
		crypto:      &fakeCrypto{accept: testAcceptedPassphrase},
	}
}

func (f *fixture) validator(t *testing.T, mutate func(*Params)) *Validator {
	t.Helper()
	params := Params{
		Network:     f.network,
		CRL:         f.crl,
		Passphrases: f.passphrases,
		Devices:     f.devices,
		Crypto:      f.crypto,
		Repository:  f.repo,
	}
	if mutate != nil {
		mutate(&params)
	}
	v, err := New(params)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return v
}

type observedResult struct {
	documents *ValidatedDocuments
	err       error
}

// collect returns an observer that appends every notification.
func collect(results *[]observedResult) Observer {
	return func(documents *ValidatedDocuments, err error) {
		*results = append(*results, observedResult{documents: documents, err: err})
	}
}
