package validation

import "sync"

// Observer receives terminal validation results. Exactly one of the two
// arguments is non-nil at a terminal notification; both are nil when a
// passphrase cancellation returns the machine to its start state.
type Observer func(*ValidatedDocuments, error)

// Policy controls how long a subscription lives.
type Policy int

const (
	// PolicyOnce deregisters the observer after its first notification.
	PolicyOnce Policy = iota
	// PolicyAlways keeps the observer enrolled across notifications.
	PolicyAlways
)

type observation struct {
	observer Observer
	policy   Policy
}

// observerRegistry is per-machine state. Callbacks run in subscription
// order; once-only entries are removed atomically after each notification.
type observerRegistry struct {
	mu      sync.Mutex
	entries []observation
}

func (r *observerRegistry) add(observer Observer, policy Policy) {
	if observer == nil {
		return
	}
	r.mu.Lock()
	r.entries = append(r.entries, observation{observer: observer, policy: policy})
	r.mu.Unlock()
}

func (r *observerRegistry) notify(documents *ValidatedDocuments, err error) {
	r.mu.Lock()
	snapshot := make([]observation, len(r.entries))
	copy(snapshot, r.entries)
	kept := r.entries[:0]
	for _, entry := range r.entries {
		if entry.policy == PolicyAlways {
			kept = append(kept, entry)
		}
	}
	r.entries = kept
	r.mu.Unlock()

	for _, entry := range snapshot {
		entry.observer(documents, err)
	}
}

func (r *observerRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
