package validation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/status"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

// enterState runs the side effect bound to the state just entered. A panic
// inside a handler is converted into a failure event; terminal states never
// re-throw.
func (v *Validator) enterState(ctx context.Context, s state) {
	if v.logg != nil {
		v.logg.Debug(v.logg.WithState(ctx, s.name()), "entered state")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			v.machine.raise(ctx, eventFailed{err: pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("handler panic: %v", recovered))})
		}
	}()

	switch st := s.(type) {
	case stateValidateLicense:
		v.validateLicense(ctx, st)
	case stateFetchStatus:
		v.fetchStatus(ctx, st)
	case stateValidateStatus:
		v.validateStatus(ctx, st)
	case stateFetchLicense:
		v.fetchLicense(ctx, st)
	case stateCheckLicenseStatus:
		v.checkLicenseStatus(ctx, st)
	case stateRequestPassphrase:
		v.requestPassphrase(ctx, st)
	case stateValidateIntegrity:
		v.validateIntegrity(ctx, st)
	case stateRegisterDevice:
		v.registerDevice(ctx, st)
	case stateValid:
		v.finish(ctx, st.documents, nil)
	case stateFailure:
		v.finish(ctx, nil, st.err)
	case stateStart:
		// Re-entered only through passphrase cancellation.
		v.cancelled(ctx)
	}
}

func (v *Validator) validateLicense(ctx context.Context, st stateValidateLicense) {
	doc, err := license.Parse(st.data)
	if err != nil {
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	ctx = v.withLicenseFields(ctx, doc)

	if !license.ProfileAllowed(doc.Profile(), v.production) {
		v.machine.raise(ctx, eventFailed{err: pkgerrors.New(pkgerrors.CodeProfile,
			fmt.Sprintf("encryption profile %q not supported by this build", doc.Profile()))})
		return
	}

	if v.repo != nil {
		if err := v.repo.AddLicense(ctx, doc); err != nil && v.logg != nil {
			// Persistence is best-effort and never fails validation.
			v.logg.Error(ctx, "failed to persist license", err)
		}
	}

	if err := v.notifyLicenseValidated(doc); err != nil {
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}

	v.machine.raise(ctx, eventValidatedLicense{license: doc})
}

// notifyLicenseValidated invokes the external persistence hook exactly once
// per distinct license payload seen during one validate call.
func (v *Validator) notifyLicenseValidated(doc *license.Document) error {
	if v.onLicenseValidated == nil {
		return nil
	}
	digest := sha256.Sum256(doc.Raw())
	v.mu.Lock()
	if v.seenPayloads[digest] {
		v.mu.Unlock()
		return nil
	}
	v.seenPayloads[digest] = true
	v.mu.Unlock()
	return v.onLicenseValidated(doc)
}

func (v *Validator) fetchStatus(ctx context.Context, st stateFetchStatus) {
	ctx = v.withLicenseFields(ctx, st.license)
	link := st.license.Link(license.RelStatus)
	if link == nil {
		v.machine.raise(ctx, eventFailed{err: pkgerrors.New(pkgerrors.CodeValidation, "license has no status link")})
		return
	}
	data, err := v.network.Fetch(ctx, link.Href)
	if err != nil {
		v.metrics.IncStatusFetchFailure()
		if v.logg != nil {
			v.logg.Warn(ctx, "status document fetch failed, continuing without it")
		}
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	v.machine.raise(ctx, eventRetrievedStatusData{data: data})
}

func (v *Validator) validateStatus(ctx context.Context, st stateValidateStatus) {
	doc, err := status.Parse(st.data)
	if err != nil {
		if v.logg != nil {
			v.logg.Warn(ctx, "status document unparseable, continuing without it")
		}
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	v.machine.raise(ctx, eventValidatedStatus{status: doc})
}

func (v *Validator) fetchLicense(ctx context.Context, st stateFetchLicense) {
	ctx = v.withLicenseFields(ctx, st.license)
	link := st.status.Link(status.RelLicense)
	if link == nil {
		v.machine.raise(ctx, eventFailed{err: pkgerrors.New(pkgerrors.CodeValidation, "status document has no license link")})
		return
	}
	data, err := v.network.Fetch(ctx, link.Href)
	if err != nil {
		if v.logg != nil {
			v.logg.Warn(ctx, "updated license fetch failed, keeping the current one")
		}
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	v.machine.raise(ctx, eventRetrievedLicenseData{data: data})
}

func (v *Validator) checkLicenseStatus(ctx context.Context, st stateCheckLicenseStatus) {
	now := v.now()
	start := now
	if s := st.license.RightsStart(); s != nil {
		start = *s
	}
	end := now
	if e := st.license.RightsEnd(); e != nil {
		end = *e
	}
	if !start.After(now) && !now.After(end) {
		v.machine.raise(ctx, eventCheckedLicenseStatus{})
		return
	}
	v.machine.raise(ctx, eventCheckedLicenseStatus{statusErr: deriveStatusError(st.status, start, end)})
}

// deriveStatusError maps the provider-side lifecycle to the reason the
// rights window is closed. Without a status document the only explanation
// is expiry.
func deriveStatusError(doc *status.Document, start, end time.Time) *status.Error {
	if doc == nil {
		return &status.Error{Kind: status.KindExpired, Start: &start, End: &end}
	}
	var date *time.Time
	if updated := doc.StatusUpdated(); !updated.IsZero() {
		date = &updated
	}
	switch doc.Status {
	case status.StatusReturned:
		return &status.Error{Kind: status.KindReturned, Date: date}
	case status.StatusRevoked:
		return &status.Error{Kind: status.KindRevoked, Date: date, DeviceCount: doc.RegisteredDevices()}
	case status.StatusCancelled:
		return &status.Error{Kind: status.KindCancelled, Date: date}
	default:
		// ready, active, and expired all read as an expired rights
		// window from the client's point of view.
		return &status.Error{Kind: status.KindExpired, Start: &start, End: &end}
	}
}

func (v *Validator) requestPassphrase(ctx context.Context, st stateRequestPassphrase) {
	ctx = v.withLicenseFields(ctx, st.license)
	pass, err := v.passphrases.Request(ctx, st.license, v.currentAuthenticator())
	if err != nil {
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	if pass == "" {
		v.machine.raise(ctx, eventCancelled{})
		return
	}
	v.machine.raise(ctx, eventRetrievedPassphrase{passphrase: pass})
}

func (v *Validator) validateIntegrity(ctx context.Context, st stateValidateIntegrity) {
	ctx = v.withLicenseFields(ctx, st.license)

	// The profile was checked at parse time; re-check here so a crafted
	// status-driven re-validation cannot skip the gate.
	if !license.ProfileAllowed(st.license.Profile(), v.production) {
		v.machine.raise(ctx, eventFailed{err: pkgerrors.New(pkgerrors.CodeProfile,
			fmt.Sprintf("encryption profile %q not supported by this build", st.license.Profile()))})
		return
	}

	crl, err := v.crl.Retrieve(ctx)
	if err != nil {
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}

	drmContext, err := v.crypto.CreateContext(ctx, st.license.Raw(), st.passphrase, crl)
	if err != nil {
		v.machine.raise(ctx, eventFailed{err: pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "create drm context")})
		return
	}
	v.machine.raise(ctx, eventValidatedIntegrity{drmContext: drmContext})
}

func (v *Validator) registerDevice(ctx context.Context, st stateRegisterDevice) {
	ctx = v.withLicenseFields(ctx, st.documents.License)
	data, err := v.devices.RegisterLicense(ctx, st.documents.License, st.link)
	if err != nil {
		v.metrics.IncRegistration("failure")
		if v.logg != nil {
			v.logg.Warn(ctx, "device registration failed, access is kept")
		}
		v.machine.raise(ctx, eventFailed{err: err})
		return
	}
	v.metrics.IncRegistration("success")
	v.machine.raise(ctx, eventRegisteredDevice{statusData: data})
}

func (v *Validator) withLicenseFields(ctx context.Context, doc *license.Document) context.Context {
	if v.logg == nil || doc == nil {
		return ctx
	}
	return v.logg.WithLicenseID(ctx, doc.UUID)
}
