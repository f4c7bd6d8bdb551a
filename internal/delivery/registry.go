// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Target is an external messaging surface. Addresses are opaque channel or
// thread identifiers chosen by the target.
type Target interface {
	// CreateChannel creates (or finds) a channel named name and returns its
	// address.
	CreateChannel(ctx context.Context, name string) (string, error)
	// Post posts text to a channel or thread and returns the address of the
	// thread the post belongs to. Posting to a channel starts a new thread.
	Post(ctx context.Context, addr, text string) (string, error)
	// Archive locks a thread against further replies.
	Archive(ctx context.Context, addr string) error
}

// Registry routes Target operations by address scheme, e.g. "slack:C123"
// or "telegram:42/17". Backends see addresses with the scheme stripped and
// return addresses without it.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Target
	primary  string
}

// NewRegistry creates an empty registry. New channels are created on the
// backend registered as primary.
func NewRegistry(primary string) *Registry {
	return &Registry{
		backends: make(map[string]Target),
		primary:  primary,
	}
}

// Register adds a backend for addresses starting with scheme + ":".
func (r *Registry) Register(scheme string, backend Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = backend
}

// Schemes lists the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	return out
}

func (r *Registry) CreateChannel(ctx context.Context, name string) (string, error) {
	b, err := r.backend(r.primary)
	if err != nil {
		return "", err
	}
	addr, err := b.CreateChannel(ctx, name)
	if err != nil {
		return "", err
	}
	return r.primary + ":" + addr, nil
}

func (r *Registry) Post(ctx context.Context, addr, text string) (string, error) {
	scheme, rest, b, err := r.route(addr)
	if err != nil {
		return "", err
	}
	thread, err := b.Post(ctx, rest, text)
	if err != nil {
		return "", err
	}
	return scheme + ":" + thread, nil
}

func (r *Registry) Archive(ctx context.Context, addr string) error {
	_, rest, b, err := r.route(addr)
	if err != nil {
		return err
	}
	return b.Archive(ctx, rest)
}

func (r *Registry) route(addr string) (string, string, Target, error) {
	scheme, rest, ok := strings.Cut(addr, ":")
	if !ok {
		return "", "", nil, fmt.Errorf("no delivery scheme in address: %s", addr)
	}
	b, err := r.backend(scheme)
	return scheme, rest, b, err
}

func (r *Registry) backend(scheme string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[scheme]
	if !ok {
		return nil, fmt.Errorf("no delivery backend for scheme: %s", scheme)
	}
	return b, nil
}
