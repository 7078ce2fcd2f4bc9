package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
	"github.com/paperbound/lcp-client/pkg/config"
)

type memoryStore struct {
	registered map[string]bool
}

func (m *memoryStore) IsDeviceRegistered(ctx context.Context, licenseID string) (bool, error) {
	return m.registered[licenseID], nil
}

func (m *memoryStore) SetDeviceRegistered(ctx context.Context, licenseID string) error {
	if m.registered == nil {
		m.registered = make(map[string]bool)
	}
	m.registered[licenseID] = true
	return nil
}

func newTestService(t *testing.T, store RegistrationStore) *Service {
	t.Helper()
	return NewService(
		config.DeviceConfig{Name: "Test Reader"},
		config.HTTPConfig{Timeout: 5 * time.Second},
		store,
		nil,
	)
}

func testDocument(t *testing.T) *license.Document {
	t.Helper()
	data := []byte(`{
		"provider": "https://provider.example",
		"id": "lic-42",
		"issued": "2024-03-01T10:00:00Z",
		"encryption": {"profile": "http://readium.org/lcp/basic-profile"},
		"signature": {"algorithm": "alg", "certificate": "Y2VydA==", "value": "c2ln"}
	}`)
	doc, err := license.Parse(data)
	if err != nil {
		t.Fatalf("parse license: %v", err)
	}
	return doc
}

func TestRegisterLicensePostsDeviceParams(t *testing.T) {
	var gotID, gotName string
	router := chi.NewRouter()
	router.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		gotID = r.URL.Query().Get("id")
		gotName = r.URL.Query().Get("name")
		w.Write([]byte(`{"id":"lic-42","status":"active"}`))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	svc := newTestService(t, nil)
	link := &status.Link{Rel: status.RelRegister, Href: server.URL + "/register{?id,name}", Templated: true}

	body, err := svc.RegisterLicense(context.Background(), testDocument(t), link)
	if err != nil {
		t.Fatalf("RegisterLicense returned error: %v", err)
	}
	if len(body) == 0 {
		t.Fatalf("expected fresh status document bytes")
	}
	if gotID != svc.ID() {
		t.Fatalf("expected device id %q, got %q", svc.ID(), gotID)
	}
	if gotName != "Test Reader" {
		t.Fatalf("expected device name, got %q", gotName)
	}
}

func TestRegisterLicenseSkipsWhenAlreadyRegistered(t *testing.T) {
	var calls atomic.Int32
	router := chi.NewRouter()
	router.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	store := &memoryStore{registered: map[string]bool{"lic-42": true}}
	svc := newTestService(t, store)
	link := &status.Link{Rel: status.RelRegister, Href: server.URL + "/register"}

	body, err := svc.RegisterLicense(context.Background(), testDocument(t), link)
	if err != nil {
		t.Fatalf("RegisterLicense returned error: %v", err)
	}
	if body != nil {
		t.Fatalf("expected nil body for already-registered device")
	}
	if calls.Load() != 0 {
		t.Fatalf("server should not be called")
	}
}

func TestRegisterLicenseMarksStore(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(``))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	store := &memoryStore{}
	svc := newTestService(t, store)
	link := &status.Link{Rel: status.RelRegister, Href: server.URL + "/register"}

	body, err := svc.RegisterLicense(context.Background(), testDocument(t), link)
	if err != nil {
		t.Fatalf("RegisterLicense returned error: %v", err)
	}
	if body != nil {
		t.Fatalf("empty response should yield nil bytes")
	}
	if !store.registered["lic-42"] {
		t.Fatalf("expected registration persisted")
	}
}

func TestRegisterLicenseSurfacesServerRejection(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	svc := newTestService(t, nil)
	link := &status.Link{Rel: status.RelRegister, Href: server.URL + "/register"}

	if _, err := svc.RegisterLicense(context.Background(), testDocument(t), link); err == nil {
		t.Fatalf("expected error for rejected registration")
	}
}
