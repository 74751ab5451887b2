// Package registry holds the capability -> ordered-provider-list mapping.
// Registry is an explicit, instantiable value passed to the dispatcher
// rather than a process-wide singleton behind package-level vars, so tests
// can construct independent registries without cross-test state leaking
// through shared globals.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
)

// Handler is the opaque invocable a provider registers. params is the
// capability-specific Params value; the returned result is opaque to the
// core. A handler must respect ctx's cancellation signal.
type Handler func(ctx context.Context, params capability.Params) (any, error)

// CostProfile is the optional cost-estimation configuration carried on a
// registration's capability record.
type CostProfile struct {
	SimulatedModelName string
	CharsPerToken      float64 // default 4.0
	RequestFixedFeeUSD float64
	DiscountFactor     float64 // default 1.0
}

// Profile is the capability record recognized by the core at registration.
type Profile struct {
	TypicalLatencyMs     int64
	JSONReliabilityScore float64
	Cost                 *CostProfile // nil means no cost estimate is produced
}

// Registration is an immutable provider entry within one capability's list.
type Registration struct {
	Capability capability.Capability
	ProviderID string
	Handler    Handler
	Priority   int
	Profile    Profile
}

// Registry maps a capability tag to its ordered candidate list. The zero
// value is not usable (Register on it panics); construct with New.
type Registry struct {
	mu   sync.RWMutex
	byCap map[capability.Capability][]Registration
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byCap: make(map[capability.Capability][]Registration)}
}

// DuplicateRegistrationError is returned by Register when a (providerId,
// capability) pair is already registered, rather than silently admitting
// two independent entries for the same pair.
type DuplicateRegistrationError struct {
	ProviderID string
	Capability capability.Capability
}

func (e *DuplicateRegistrationError) Error() string {
	return "registry: duplicate registration for provider " + e.ProviderID + " capability " + string(e.Capability)
}

// Register appends a provider to its capability's list, then re-sorts the
// list by priority descending with a stable sort so ties keep insertion
// order. Registering the same (providerId, capability) pair twice is
// rejected.
func (r *Registry) Register(cap capability.Capability, providerID string, handler Handler, priority int, profile Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byCap[cap] {
		if existing.ProviderID == providerID {
			return &DuplicateRegistrationError{ProviderID: providerID, Capability: cap}
		}
	}

	reg := Registration{
		Capability: cap,
		ProviderID: providerID,
		Handler:    handler,
		Priority:   priority,
		Profile:    profile,
	}
	list := append(r.byCap[cap], reg)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	r.byCap[cap] = list
	return nil
}

// Get returns a read-only snapshot (copy) of the registrations for cap, so
// that a caller ranging over the result is safe from concurrent mutation.
func (r *Registry) Get(cap capability.Capability) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byCap[cap]
	out := make([]Registration, len(src))
	copy(out, src)
	return out
}

// Clear empties the entire registry. Intended for test isolation only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCap = make(map[capability.Capability][]Registration)
}
