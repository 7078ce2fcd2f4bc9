package validation

import (
	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
)

// event is the sealed set of machine inputs. Events raised from inside a
// handler are delivered after that handler returns, in FIFO order.
type event interface {
	name() string
}

type eventRetrievedLicenseData struct {
	data []byte
}

type eventValidatedLicense struct {
	license *license.Document
}

type eventRetrievedStatusData struct {
	data []byte
}

type eventValidatedStatus struct {
	status *status.Document
}

type eventCheckedLicenseStatus struct {
	statusErr *status.Error
}

type eventRetrievedPassphrase struct {
	passphrase string
}

type eventValidatedIntegrity struct {
	drmContext drm.Context
}

type eventRegisteredDevice struct {
	statusData []byte
}

type eventFailed struct {
	err error
}

type eventCancelled struct{}

func (eventRetrievedLicenseData) name() string { return "retrieved_license_data" }
func (eventValidatedLicense) name() string     { return "validated_license" }
func (eventRetrievedStatusData) name() string  { return "retrieved_status_data" }
func (eventValidatedStatus) name() string      { return "validated_status" }
func (eventCheckedLicenseStatus) name() string { return "checked_license_status" }
func (eventRetrievedPassphrase) name() string  { return "retrieved_passphrase" }
func (eventValidatedIntegrity) name() string   { return "validated_integrity" }
func (eventRegisteredDevice) name() string     { return "registered_device" }
func (eventFailed) name() string               { return "failed" }
func (eventCancelled) name() string            { return "cancelled" }
