package drm

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/paperbound/lcp-client/internal/license"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
	"github.com/paperbound/lcp-client/pkg/logger"
)

// SoftCrypto is a pure-Go provider for the basic profile. The user key is
// SHA-256 of the passphrase and the key check is the license id encrypted
// under that key with AES-256-CBC. Production profiles use undisclosed key
// derivation and are always refused, which in turn reports the build as
// non-production to the validation facade.
type SoftCrypto struct {
	logg *logger.Logger
}

func NewSoftCrypto(logg *logger.Logger) *SoftCrypto {
	return &SoftCrypto{logg: logg}
}

func (s *SoftCrypto) FindOneValidPassphrase(ctx context.Context, licenseJSON []byte, candidates []string) (string, error) {
	doc, err := license.Parse(licenseJSON)
	if err != nil {
		return "", err
	}
	if doc.Profile() != license.ProfileBasic {
		return "", pkgerrors.New(pkgerrors.CodeProfile, "soft crypto only supports the basic profile")
	}
	for _, candidate := range candidates {
		if err := checkUserKey(doc, UserKey(candidate)); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (s *SoftCrypto) CreateContext(ctx context.Context, licenseJSON []byte, passphrase string, crl []byte) (Context, error) {
	doc, err := license.Parse(licenseJSON)
	if err != nil {
		return nil, err
	}
	if doc.Profile() != license.ProfileBasic {
		return nil, pkgerrors.New(pkgerrors.CodeProfile, "soft crypto only supports the basic profile")
	}

	userKey := UserKey(passphrase)
	if err := checkUserKey(doc, userKey); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "user key check failed")
	}

	if err := s.checkRevocation(ctx, doc, crl); err != nil {
		return nil, err
	}

	contentKey, err := decryptCBC(userKey, doc.Encryption.ContentKey.Value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "decrypt content key")
	}
	if len(contentKey) != 32 {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "content key has unexpected length")
	}

	return &softContext{contentKey: contentKey}, nil
}

func (s *SoftCrypto) checkRevocation(ctx context.Context, doc *license.Document, crl []byte) error {
	if len(crl) == 0 {
		return nil
	}
	cert, err := x509.ParseCertificate(doc.Signature.Certificate)
	if err != nil {
		// Signature verification is out of scope for the soft provider;
		// an unparseable certificate only disables the revocation check.
		if s.logg != nil {
			s.logg.Warn(ctx, "license certificate not parseable, skipping revocation check")
		}
		return nil
	}
	list, err := parseCRL(crl)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "revocation list not parseable, skipping revocation check")
		}
		return nil
	}
	for _, revoked := range list.RevokedCertificateEntries {
		if revoked.SerialNumber != nil && revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return pkgerrors.New(pkgerrors.CodeIntegrity, "license signing certificate is revoked")
		}
	}
	return nil
}

func parseCRL(data []byte) (*x509.RevocationList, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	return x509.ParseRevocationList(data)
}

// UserKey derives the basic-profile user key from a passphrase.
func UserKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

func checkUserKey(doc *license.Document, userKey []byte) error {
	plain, err := decryptCBC(userKey, doc.Encryption.UserKey.Keycheck)
	if err != nil {
		return err
	}
	if !bytes.Equal(plain, []byte(doc.UUID)) {
		return fmt.Errorf("key check mismatch")
	}
	return nil
}

func decryptCBC(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not block aligned")
	}
	iv := data[:aes.BlockSize]
	cipherText := append([]byte(nil), data[aes.BlockSize:]...)
	if len(cipherText) == 0 {
		return nil, fmt.Errorf("ciphertext is empty")
	}
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(cipherText, cipherText)
	return unpadPKCS7(cipherText)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}

type softContext struct {
	contentKey []byte
}

func (c *softContext) Decrypt(cipherText []byte) ([]byte, error) {
	plain, err := decryptCBC(c.contentKey, cipherText)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "decrypt resource")
	}
	return plain, nil
}
