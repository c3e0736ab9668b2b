package provider

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils"
)

var (
	ErrNoProvider = errors.New("provider: no compatible camera provider")
	ErrUnknown    = errors.New("provider: unknown provider")

	logger = utils.GetLogger().Named("provider")
)

// Provider is one way of obtaining a DeviceBackend.
type Provider struct {
	Name string
	// Applicable is checked first; nil means every platform.
	Applicable func(Platform) bool
	// Available reports a missing runtime dependency; nil means always.
	Available func() error
	New       func() (camera.DeviceBackend, error)
}

func (p Provider) applies(pl Platform) bool {
	return p.Applicable == nil || p.Applicable(pl)
}

func (p Provider) available() error {
	if p.Available == nil {
		return nil
	}
	return p.Available()
}

// Registry keeps providers in priority order, with an optional fallback that
// is always tried last.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	fallback  *Provider
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends p, or replaces a provider of the same name in place.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.providers {
		if r.providers[i].Name == p.Name {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = &p
}

// Compatible lists the providers that apply to pl, fallback last.
func (r *Registry) Compatible(pl Platform) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.providers {
		if p.applies(pl) {
			out = append(out, p)
		}
	}
	if r.fallback != nil && r.fallback.applies(pl) {
		out = append(out, *r.fallback)
	}
	return out
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name == name {
			return p, true
		}
	}
	if r.fallback != nil && r.fallback.Name == name {
		return *r.fallback, true
	}
	return Provider{}, false
}

// Select returns the first compatible provider that is available and builds
// a backend. The error lists why each candidate was skipped.
func (r *Registry) Select(pl Platform) (Provider, camera.DeviceBackend, error) {
	var errs error
	for _, p := range r.Compatible(pl) {
		b, err := build(p)
		if err != nil {
			logger.Debugf("skip provider %s: %s", p.Name, err)
			errs = multierr.Append(errs, err)
			continue
		}
		return p, b, nil
	}
	if errs == nil {
		return Provider{}, nil, fmt.Errorf("%w for %s", ErrNoProvider, pl.OS)
	}
	return Provider{}, nil, fmt.Errorf("%w for %s: %w", ErrNoProvider, pl.OS, errs)
}

// Backend builds a backend from the named provider, or selects one when
// name is empty.
func (r *Registry) Backend(name string, pl Platform) (Provider, camera.DeviceBackend, error) {
	if name == "" {
		return r.Select(pl)
	}
	p, ok := r.Lookup(name)
	if !ok {
		return Provider{}, nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	b, err := build(p)
	if err != nil {
		return Provider{}, nil, err
	}
	return p, b, nil
}

func build(p Provider) (camera.DeviceBackend, error) {
	if err := p.available(); err != nil {
		return nil, fmt.Errorf("%s unavailable: %w", p.Name, err)
	}
	if p.New == nil {
		return nil, fmt.Errorf("%s has no constructor", p.Name)
	}
	b, err := p.New()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return b, nil
}

// NewCamera builds a Controller on the named provider of the default
// registry, or on the first usable one when name is empty.
func NewCamera(name string, sink camera.Sink, cfg camera.Config, opts ...camera.Option) (*camera.Controller, Provider, error) {
	p, b, err := Default().Backend(name, Current())
	if err != nil {
		return nil, Provider{}, err
	}
	logger.Infof("using camera provider %s", p.Name)
	return camera.New(b, sink, cfg, opts...), p, nil
}
