package registry

import "fmt"

// Registry is the aggregator's host state registry. It is owned
// exclusively by the connection hub's event loop goroutine.
type Registry struct {
	hosts    map[string]*Host
	messages []*Message
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{hosts: make(map[string]*Host)}
}

// Host returns the host record for name, or nil if no agent is bound to
// it.
func (r *Registry) Host(name string) *Host {
	return r.hosts[name]
}

// Hosts returns every bound host record. Order is unspecified.
func (r *Registry) Hosts() []*Host {
	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	return out
}

// Bind admits a new host record for name, enforcing the "at most one
// agent connection per host" invariant (§3). It returns an error if a
// host record for name already exists.
func (r *Registry) Bind(name string) (*Host, error) {
	if _, exists := r.hosts[name]; exists {
		return nil, fmt.Errorf("host %q already has a bound agent connection", name)
	}
	h := NewHost(name)
	r.hosts[name] = h
	return h, nil
}

// Release destroys the host record for name, exactly as invoked when its
// agent connection closes (§3 lifecycle).
func (r *Registry) Release(name string) {
	delete(r.hosts, name)
}
