package interceptors

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewInterceptor)
)

// Register adds an interceptor constructor. Called from init.
func Register(name string, fn NewInterceptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Get returns the constructor registered under name.
func Get(name string) (NewInterceptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered interceptor names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs interceptor name with the given profile from the
// [http.interceptors] tables.
func Build(interceptorsCfg map[string]map[string]any, name, profile string, log *slog.Logger) (Middleware, error) {
	fn, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("interceptor %q is not registered", name)
	}
	conf, err := GetProfileConfig(interceptorsCfg, name, profile)
	if err != nil {
		return nil, err
	}
	mw, err := fn(conf, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s profile %q: %w", name, profile, err)
	}
	return mw, nil
}
