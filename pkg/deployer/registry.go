package deployer

import (
	"fmt"
	"sync"
)

// Factory builds a deployer flavor from whatever configuration the flavor
// needs; flavors close over their own config at registration time.
type Factory func() (ModelDeployer, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a deployer flavor available under the given name.
// Registering the same name twice panics; flavor names are package-level
// constants and a collision is a programming error.
func Register(flavor string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[flavor]; ok {
		panic(fmt.Sprintf("deployer flavor %q registered twice", flavor))
	}
	registry[flavor] = factory
}

// New instantiates the deployer registered under flavor.
func New(flavor string) (ModelDeployer, error) {
	registryMu.RLock()
	factory, ok := registry[flavor]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown deployer flavor %q", flavor)
	}
	return factory()
}
