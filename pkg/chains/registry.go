package chains

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNetworkNotRegistered is returned when no adapter serves a network
var ErrNetworkNotRegistered = errors.New("no adapter registered for network")

// EndpointUpdater is implemented by adapters whose RPC endpoints can be
// swapped while the adapter stays in use
type EndpointUpdater interface {
	Endpoints() []string
	UpdateEndpoints(endpoints []string)
}

// Registry maps network names to chain adapters. Components look an adapter
// up once at startup and keep it, so refreshes update adapters in place.
type Registry struct {
	adapters map[string]ChainAdapter
	mu       sync.RWMutex
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]ChainAdapter),
	}
}

// InitGlobalRegistry initializes the process-wide chain registry
func InitGlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// GetGlobalRegistry returns the process-wide registry, or nil before InitGlobalRegistry
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds an adapter under adapter.Network(). When the network already
// has an adapter and both sides implement EndpointUpdater, the existing adapter
// is kept and takes over the new endpoints; otherwise it is replaced.
func (r *Registry) Register(adapter ChainAdapter) error {
	if adapter == nil {
		return fmt.Errorf("cannot register nil adapter")
	}
	network := adapter.Network()
	if network == "" {
		return fmt.Errorf("cannot register adapter without a network name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.adapters[network]; ok && existing != adapter {
		current, canUpdate := existing.(EndpointUpdater)
		fresh, hasEndpoints := adapter.(EndpointUpdater)
		if canUpdate && hasEndpoints {
			current.UpdateEndpoints(fresh.Endpoints())
			return nil
		}
	}

	r.adapters[network] = adapter
	return nil
}

// Get returns the adapter serving network
func (r *Registry) Get(network string) (ChainAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[network]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotRegistered, network)
	}
	return adapter, nil
}

// GetSupportedNetworks returns the registered networks in sorted order
func (r *Registry) GetSupportedNetworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	networks := make([]string, 0, len(r.adapters))
	for network := range r.adapters {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	return networks
}

// IsSupported reports whether network has an adapter
func (r *Registry) IsSupported(network string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.adapters[network]
	return exists
}

// ResetGlobalRegistry drops the process-wide registry
func ResetGlobalRegistry() {
	globalRegistry = nil
	globalRegistryOnce = sync.Once{}
}
