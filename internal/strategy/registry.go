package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// Variant describes one selectable strategy: its quoting policy plus the
// extensions layered on top. StopLoss and ClosingAuction are orthogonal to
// the per-side policy.
type Variant struct {
	Name           string
	Policy         Policy
	UseStopLoss    bool
	ClosingAuction bool
}

// Registry manages the named strategy variants. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
}

// NewRegistry returns a registry preloaded with the built-in variants.
func NewRegistry() *Registry {
	r := &Registry{variants: make(map[string]Variant)}
	r.Register(Variant{Name: "baseline", Policy: NewBaseline()})
	r.Register(Variant{Name: "price_follow", Policy: NewPriceFollow()})
	r.Register(Variant{Name: "stop_loss", Policy: NewPriceFollow(), UseStopLoss: true})
	r.Register(Variant{Name: "closing_auction", ClosingAuction: true})
	return r
}

// Register adds or replaces a variant under its name.
func (r *Registry) Register(v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[v.Name] = v
}

// Get retrieves a variant by name.
func (r *Registry) Get(name string) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("strategy %q: %w", name, domain.ErrUnknownStrategy)
	}
	return v, nil
}

// List returns the registered variant names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.variants))
	for n := range r.variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
