package policy

import "fmt"

// Registry holds every loaded policy, keyed by name, and validates them
// as a set (fileclass cross-references between policy and the fileclass
// registry are the caller's responsibility; this package only checks
// what it can see locally).
type Registry struct {
	policies map[string]*Policy
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]*Policy)}
}

// Add validates and registers a policy. Returns an error if a policy by
// the same name already exists or the policy itself is structurally
// invalid.
func (r *Registry) Add(p *Policy) error {
	if _, exists := r.policies[p.Name]; exists {
		return fmt.Errorf("policy: duplicate policy name %q", p.Name)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	r.policies[p.Name] = p
	r.order = append(r.order, p.Name)
	return nil
}

// Get looks up a policy by name.
func (r *Registry) Get(name string) (*Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// All returns every policy in declaration order.
func (r *Registry) All() []*Policy {
	out := make([]*Policy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.policies[name])
	}
	return out
}
