package drm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/paperbound/lcp-client/internal/license"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

const (
	testLicenseID  = "0d1a5d0e-7f47-4ce5-b0f6-6ef0b2b98b1a"
	testPassphrase = "open sesame"
)

func encryptCBC(t *testing.T, key, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	padding := aes.BlockSize - len(plain)%aes.BlockSize
	for i := 0; i < padding; i++ {
		plain = append(plain, byte(padding))
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("read iv: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return append(iv, out...)
}

func testLicenseJSON(t *testing.T, profile, passphrase string, contentKey []byte) []byte {
	t.Helper()
	userKey := UserKey(passphrase)
	keycheck := encryptCBC(t, userKey, []byte(testLicenseID))
	encryptedContentKey := encryptCBC(t, userKey, contentKey)

	doc := map[string]any{
		"provider": "https://provider.example",
		"id":       testLicenseID,
		"issued":   "2024-03-01T10:00:00Z",
		"encryption": map[string]any{
			"profile": profile,
			"content_key": map[string]any{
				"algorithm":       "http://www.w3.org/2001/04/xmlenc#aes256-cbc",
				"encrypted_value": base64.StdEncoding.EncodeToString(encryptedContentKey),
			},
			"user_key": map[string]any{
				"algorithm": "http://www.w3.org/2001/04/xmlenc#sha256",
				"text_hint": "say the magic words",
				"key_check": base64.StdEncoding.EncodeToString(keycheck),
			},
		},
		"links": []map[string]any{
			{"rel": "hint", "href": "https://provider.example/hint"},
		},
		"signature": map[string]any{
			"algorithm":   "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256",
			"certificate": base64.StdEncoding.EncodeToString([]byte("not-a-certificate")),
			"value":       base64.StdEncoding.EncodeToString([]byte("sig")),
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal license: %v", err)
	}
	return data
}

func newContentKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("read content key: %v", err)
	}
	return key
}

func TestFindOneValidPassphrase(t *testing.T) {
	crypto := NewSoftCrypto(nil)
	data := testLicenseJSON(t, license.ProfileBasic, testPassphrase, newContentKey(t))

	found, err := crypto.FindOneValidPassphrase(context.Background(), data, []string{"wrong", testPassphrase, "also wrong"})
	if err != nil {
		t.Fatalf("FindOneValidPassphrase returned error: %v", err)
	}
	if found != testPassphrase {
		t.Fatalf("expected %q, got %q", testPassphrase, found)
	}
}

func TestFindOneValidPassphraseNoMatch(t *testing.T) {
	crypto := NewSoftCrypto(nil)
	data := testLicenseJSON(t, license.ProfileBasic, testPassphrase, newContentKey(t))

	found, err := crypto.FindOneValidPassphrase(context.Background(), data, []string{"wrong"})
	if err != nil {
		t.Fatalf("FindOneValidPassphrase returned error: %v", err)
	}
	if found != "" {
		t.Fatalf("expected no match, got %q", found)
	}
}

func TestFindOneValidPassphraseRejectsProductionProfile(t *testing.T) {
	crypto := NewSoftCrypto(nil)
	data := testLicenseJSON(t, license.Profile10, testPassphrase, newContentKey(t))

	_, err := crypto.FindOneValidPassphrase(context.Background(), data, []string{testPassphrase})
	if err == nil {
		t.Fatalf("expected error for production profile")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeProfile {
		t.Fatalf("expected profile error, got %v", err)
	}
}

func TestCreateContextRoundTrip(t *testing.T) {
	crypto := NewSoftCrypto(nil)
	contentKey := newContentKey(t)
	data := testLicenseJSON(t, license.ProfileBasic, testPassphrase, contentKey)

	drmCtx, err := crypto.CreateContext(context.Background(), data, testPassphrase, nil)
	if err != nil {
		t.Fatalf("CreateContext returned error: %v", err)
	}

	resource := []byte("chapter one: it was a dark and stormy night")
	encrypted := encryptCBC(t, contentKey, resource)
	plain, err := drmCtx.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if string(plain) != string(resource) {
		t.Fatalf("decrypted resource mismatch: %q", plain)
	}
}

func TestCreateContextRejectsWrongPassphrase(t *testing.T) {
	crypto := NewSoftCrypto(nil)
	data := testLicenseJSON(t, license.ProfileBasic, testPassphrase, newContentKey(t))

	_, err := crypto.CreateContext(context.Background(), data, "guessing", nil)
	if err == nil {
		t.Fatalf("expected error for wrong passphrase")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeIntegrity {
		t.Fatalf("expected integrity error, got %v", err)
	}
}
