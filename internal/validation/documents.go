package validation

import (
	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
)

// ValidatedDocuments is the terminal result of a successful validation. The
// license is always present; the status document may be nil when the
// license carries no status link or the status server was unreachable.
//
// The context is a sum: either a DRM context usable for decryption, or a
// status error explaining why a well-formed license cannot be used. Callers
// that only need license metadata must not call Context.
type ValidatedDocuments struct {
	License *license.Document
	Status  *status.Document

	drmContext drm.Context
	statusErr  *status.Error
}

// Context returns the DRM context, or the status error when the license is
// not usable.
func (d *ValidatedDocuments) Context() (drm.Context, error) {
	if d.statusErr != nil {
		return nil, d.statusErr
	}
	return d.drmContext, nil
}

// StatusError returns the lifecycle error, nil when the license is usable.
func (d *ValidatedDocuments) StatusError() *status.Error {
	return d.statusErr
}

// Usable reports whether a DRM context is available.
func (d *ValidatedDocuments) Usable() bool {
	return d.statusErr == nil && d.drmContext != nil
}
