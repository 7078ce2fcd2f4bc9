package validation

import (
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
)

// state is the sealed set of machine states. Each state owns the documents
// relevant to it; nothing outside the machine mutates them.
type state interface {
	name() string
}

type stateStart struct{}

type stateValidateLicense struct {
	data   []byte
	status *status.Document
}

type stateFetchStatus struct {
	license *license.Document
}

type stateValidateStatus struct {
	license *license.Document
	data    []byte
}

type stateFetchLicense struct {
	license *license.Document
	status  *status.Document
}

type stateCheckLicenseStatus struct {
	license *license.Document
	status  *status.Document
}

type stateRequestPassphrase struct {
	license *license.Document
	status  *status.Document
}

type stateValidateIntegrity struct {
	license    *license.Document
	status     *status.Document
	passphrase string
}

type stateRegisterDevice struct {
	documents *ValidatedDocuments
	link      *status.Link
}

type stateValid struct {
	documents *ValidatedDocuments
}

type stateFailure struct {
	err error
}

func (stateStart) name() string              { return "start" }
func (stateValidateLicense) name() string    { return "validate_license" }
func (stateFetchStatus) name() string        { return "fetch_status" }
func (stateValidateStatus) name() string     { return "validate_status" }
func (stateFetchLicense) name() string       { return "fetch_license" }
func (stateCheckLicenseStatus) name() string { return "check_license_status" }
func (stateRequestPassphrase) name() string  { return "request_passphrase" }
func (stateValidateIntegrity) name() string  { return "validate_integrity" }
func (stateRegisterDevice) name() string     { return "register_device" }
func (stateValid) name() string              { return "valid" }
func (stateFailure) name() string            { return "failure" }
