// package sources resolves scheme-prefixed keys ("youtube:dQw4w9WgXcQ")
// into local audio files via pluggable providers.
package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"yotoup/internal/shared"
)

// Provider downloads or otherwise resolves a source key into a local file
// and returns its path.
type Provider interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// MetadataProvider optionally supplies a human title for a source key,
// used as the registered filename.
type MetadataProvider interface {
	Title(ctx context.Context, key string) (string, error)
}

// Registry maps URL schemes to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register installs a provider for a scheme, replacing any previous one.
func (r *Registry) Register(scheme string, provider Provider) {
	r.mu.Lock()
	r.providers[strings.ToLower(scheme)] = provider
	r.mu.Unlock()
}

// Lookup returns the provider registered for the scheme.
func (r *Registry) Lookup(scheme string) (Provider, error) {
	r.mu.RLock()
	provider, ok := r.providers[strings.ToLower(scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", shared.ErrNoProvider, scheme)
	}
	return provider, nil
}

// Metadata returns the scheme's provider as a MetadataProvider when it
// implements one.
func (r *Registry) Metadata(scheme string) (MetadataProvider, bool) {
	provider, err := r.Lookup(scheme)
	if err != nil {
		return nil, false
	}
	meta, ok := provider.(MetadataProvider)
	return meta, ok
}

// ParseKey splits "scheme:rest" into its parts.
func ParseKey(key string) (scheme, rest string, err error) {
	scheme, rest, found := strings.Cut(key, ":")
	if !found || scheme == "" || rest == "" {
		return "", "", fmt.Errorf("%w: malformed source key %q", shared.ErrInvalidInput, key)
	}
	return strings.ToLower(scheme), rest, nil
}
