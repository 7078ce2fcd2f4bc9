// Package drm defines the contract between the validation core and the
// cryptographic provider that turns a license, a passphrase, and a CRL into
// a decryption context.
package drm

import "context"

// Context is the opaque handle required to decrypt publication resources.
type Context interface {
	// Decrypt decrypts a publication resource encrypted under the license
	// content key.
	Decrypt(cipher []byte) ([]byte, error)
}

// Crypto is implemented by cryptographic providers. A provider is either a
// production build, which accepts every published encryption profile, or a
// test build restricted to the basic profile.
type Crypto interface {
	// FindOneValidPassphrase probes the candidates against the license
	// key check and returns the first that matches, or an empty string
	// when none do.
	FindOneValidPassphrase(ctx context.Context, licenseJSON []byte, candidates []string) (string, error)

	// CreateContext verifies the passphrase and the license integrity
	// against the CRL and returns a decryption context. It fails on an
	// invalid passphrase, an unsupported profile, or a revoked signing
	// certificate.
	CreateContext(ctx context.Context, licenseJSON []byte, passphrase string, crl []byte) (Context, error)
}
