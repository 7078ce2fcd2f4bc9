package passphrase

import (
	"context"
	"errors"
	"testing"

	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
)

type stubStore struct {
	byLicense  []string
	byProvider []string
	saved      []string
	saveErr    error
}

func (s *stubStore) PassphrasesForLicense(ctx context.Context, licenseID string) ([]string, error) {
	return s.byLicense, nil
}

func (s *stubStore) PassphrasesForProvider(ctx context.Context, provider string) ([]string, error) {
	return s.byProvider, nil
}

func (s *stubStore) SavePassphrase(ctx context.Context, licenseID, provider, passphrase string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, passphrase)
	return nil
}

type stubCrypto struct {
	valid string
	err   error
}

func (s *stubCrypto) FindOneValidPassphrase(ctx context.Context, licenseJSON []byte, candidates []string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for _, c := range candidates {
		if c == s.valid {
			return c, nil
		}
	}
	return "", nil
}

func (s *stubCrypto) CreateContext(ctx context.Context, licenseJSON []byte, passphrase string, crl []byte) (drm.Context, error) {
	return nil, errors.New("not used")
}

type scriptedAuthenticator struct {
	answers []string
	err     error
	hints   []Hint
}

func (a *scriptedAuthenticator) RequestPassphrase(ctx context.Context, hint Hint) (string, error) {
	a.hints = append(a.hints, hint)
	if a.err != nil {
		return "", a.err
	}
	if len(a.answers) == 0 {
		return "", nil
	}
	answer := a.answers[0]
	a.answers = a.answers[1:]
	return answer, nil
}

func testDocument(t *testing.T) *license.Document {
	t.Helper()
	data := []byte(`{
		"provider": "https://provider.example",
		"id": "lic-7",
		"issued": "2024-03-01T10:00:00Z",
		"encryption": {
			"profile": "http://readium.org/lcp/basic-profile",
			"user_key": {"text_hint": "your library card number"}
		},
		"links": [{"rel": "hint", "href": "https://provider.example/hint"}],
		"signature": {"algorithm": "alg", "certificate": "Y2VydA==", "value": "c2ln"}
	}`)
	doc, err := license.Parse(data)
	if err != nil {
		t.Fatalf("parse license: %v", err)
	}
	return doc
}

func TestRequestUsesStoredPassphrase(t *testing.T) {
	store := &stubStore{byLicense: []string{"stored-pass"}}
	crypto := &stubCrypto{valid: "stored-pass"}
	auth := &scriptedAuthenticator{answers: []string{"should not be asked"}}
	svc := NewService(store, crypto, nil)

	found, err := svc.Request(context.Background(), testDocument(t), auth)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if found != "stored-pass" {
		t.Fatalf("expected stored passphrase, got %q", found)
	}
	if len(auth.hints) != 0 {
		t.Fatalf("authenticator should not be consulted on store hit")
	}
}

func TestRequestPromptsAndRetriesUntilValid(t *testing.T) {
	store := &stubStore{}
	crypto := &stubCrypto{valid: "correct horse"}
	auth := &scriptedAuthenticator{answers: []string{"wrong", "correct horse"}}
	svc := NewService(store, crypto, nil)

	found, err := svc.Request(context.Background(), testDocument(t), auth)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if found != "correct horse" {
		t.Fatalf("expected prompted passphrase, got %q", found)
	}
	if len(auth.hints) != 2 {
		t.Fatalf("expected two prompts, got %d", len(auth.hints))
	}
	if len(store.saved) != 1 || store.saved[0] != "correct horse" {
		t.Fatalf("expected passphrase cached, got %v", store.saved)
	}
	if auth.hints[0].TextHint != "your library card number" {
		t.Fatalf("hint text not propagated: %+v", auth.hints[0])
	}
}

func TestRequestCancellation(t *testing.T) {
	svc := NewService(&stubStore{}, &stubCrypto{valid: "x"}, nil)
	auth := &scriptedAuthenticator{}

	found, err := svc.Request(context.Background(), testDocument(t), auth)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if found != "" {
		t.Fatalf("expected cancellation, got %q", found)
	}
}

func TestRequestWithoutAuthenticatorIsCancellation(t *testing.T) {
	svc := NewService(&stubStore{}, &stubCrypto{valid: "x"}, nil)

	found, err := svc.Request(context.Background(), testDocument(t), nil)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if found != "" {
		t.Fatalf("expected cancellation without authenticator, got %q", found)
	}
}

func TestRequestPromptErrorDegradesToCancellation(t *testing.T) {
	svc := NewService(&stubStore{}, &stubCrypto{valid: "x"}, nil)
	auth := &scriptedAuthenticator{err: errors.New("ui crashed")}

	found, err := svc.Request(context.Background(), testDocument(t), auth)
	if err != nil {
		t.Fatalf("errors must degrade to cancellation, got %v", err)
	}
	if found != "" {
		t.Fatalf("expected cancellation, got %q", found)
	}
}
