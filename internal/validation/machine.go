package validation

import (
	"context"
	"sync"

	"github.com/paperbound/lcp-client/internal/status"
	"github.com/paperbound/lcp-client/pkg/logger"
)

// transition is the deterministic transition table. Undefined (state, event)
// pairs leave the state unchanged and report false.
func transition(from state, e event) (state, bool) {
	switch st := from.(type) {
	case stateStart:
		if ev, ok := e.(eventRetrievedLicenseData); ok {
			return stateValidateLicense{data: ev.data}, true
		}

	case stateValidateLicense:
		switch ev := e.(type) {
		case eventValidatedLicense:
			if st.status != nil {
				return stateCheckLicenseStatus{license: ev.license, status: st.status}, true
			}
			return stateFetchStatus{license: ev.license}, true
		case eventFailed:
			return stateFailure{err: ev.err}, true
		}

	case stateFetchStatus:
		switch ev := e.(type) {
		case eventRetrievedStatusData:
			return stateValidateStatus{license: st.license, data: ev.data}, true
		case eventFailed:
			// The status document is optional: a valid offline license
			// must stay readable.
			return stateCheckLicenseStatus{license: st.license}, true
		}

	case stateValidateStatus:
		switch ev := e.(type) {
		case eventValidatedStatus:
			if st.license.UpdatedAt().Before(ev.status.LicenseUpdated()) {
				return stateFetchLicense{license: st.license, status: ev.status}, true
			}
			return stateCheckLicenseStatus{license: st.license, status: ev.status}, true
		case eventFailed:
			return stateCheckLicenseStatus{license: st.license}, true
		}

	case stateFetchLicense:
		switch ev := e.(type) {
		case eventRetrievedLicenseData:
			return stateValidateLicense{data: ev.data, status: st.status}, true
		case eventFailed:
			return stateCheckLicenseStatus{license: st.license, status: st.status}, true
		}

	case stateCheckLicenseStatus:
		if ev, ok := e.(eventCheckedLicenseStatus); ok {
			if ev.statusErr != nil {
				return stateValid{documents: &ValidatedDocuments{
					License:   st.license,
					Status:    st.status,
					statusErr: ev.statusErr,
				}}, true
			}
			return stateRequestPassphrase{license: st.license, status: st.status}, true
		}

	case stateRequestPassphrase:
		switch ev := e.(type) {
		case eventRetrievedPassphrase:
			return stateValidateIntegrity{license: st.license, status: st.status, passphrase: ev.passphrase}, true
		case eventCancelled:
			return stateStart{}, true
		case eventFailed:
			return stateFailure{err: ev.err}, true
		}

	case stateValidateIntegrity:
		switch ev := e.(type) {
		case eventValidatedIntegrity:
			documents := &ValidatedDocuments{
				License:    st.license,
				Status:     st.status,
				drmContext: ev.drmContext,
			}
			if st.status != nil {
				if link := st.status.Link(status.RelRegister); link != nil {
					return stateRegisterDevice{documents: documents, link: link}, true
				}
			}
			return stateValid{documents: documents}, true
		case eventFailed:
			return stateFailure{err: ev.err}, true
		}

	case stateRegisterDevice:
		switch ev := e.(type) {
		case eventRegisteredDevice:
			if ev.statusData != nil {
				return stateValidateStatus{license: st.documents.License, data: ev.statusData}, true
			}
			return stateValid{documents: st.documents}, true
		case eventFailed:
			// Registration is best-effort and never denies access.
			return stateValid{documents: st.documents}, true
		}

	case stateValid:
		// Extension point: a push-style status refresh re-enters
		// validation from the valid state.
		if ev, ok := e.(eventRetrievedStatusData); ok {
			return stateValidateStatus{license: st.documents.License, data: ev.data}, true
		}
	}
	return from, false
}

// machine drives the transition table from a FIFO event queue. All
// transitions of one machine run on the caller's goroutine; events raised
// from inside a state handler are delivered after the handler returns, so
// handlers never re-enter each other.
type machine struct {
	mu         sync.Mutex
	current    state
	queue      []event
	processing bool

	onEnter func(ctx context.Context, s state)
	logg    *logger.Logger
}

func newMachine(onEnter func(context.Context, state), logg *logger.Logger) *machine {
	return &machine{current: stateStart{}, onEnter: onEnter, logg: logg}
}

// restart returns a finished machine to its start state so the same
// instance can run another validation. A machine mid-flight is left alone.
func (m *machine) restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.current.(type) {
	case stateValid, stateFailure:
		m.current = stateStart{}
	}
}

func (m *machine) state() state {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *machine) raise(ctx context.Context, e event) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	if m.processing {
		m.mu.Unlock()
		return
	}
	m.processing = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]

		to, changed := transition(m.current, next)
		if !changed {
			if m.logg != nil {
				m.logg.Debug(m.logg.WithFields(ctx, map[string]any{
					"state": m.current.name(),
					"event": next.name(),
				}), "event ignored")
			}
			continue
		}
		m.current = to
		m.mu.Unlock()
		m.onEnter(ctx, to)
		m.mu.Lock()
	}
	m.processing = false
	m.mu.Unlock()
}
