package relation

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/liverel/pkg/retain"
)

// Catalog declares sets, their attributes and fixture tuples.
type Catalog struct {
	Sets []SetSpec `json:"sets"`
}

// SetSpec declares a set.
type SetSpec struct {
	Name       string          `json:"name"`
	Attributes []AttributeSpec `json:"attributes,omitempty"`
	// Fixtures maps tuple ids to field values.
	Fixtures map[string]map[string]any `json:"fixtures,omitempty"`
}

// AttributeSpec declares an attribute. An attribute with a JSONPath is synthetic.
type AttributeSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Default  any    `json:"default,omitempty"`
	JSONPath string `json:"jsonPath,omitempty"`
}

// Registry owns a group of sets. Sets created by the registry are retained until Close.
type Registry struct {
	owner    *retain.Owner
	env      *env
	log      logr.Logger
	sets     []*Set
	index    map[string]*Set
	fixtures map[*Set]map[string]map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	e, err := newEnv(opts)
	if err != nil {
		return nil, err
	}
	return &Registry{
		owner:    retain.NewOwner("registry"),
		env:      e,
		log:      e.log.WithName("registry"),
		index:    map[string]*Set{},
		fixtures: map[*Set]map[string]map[string]any{},
	}, nil
}

// Owner returns the retainer that holds the sets of the registry.
func (r *Registry) Owner() retain.Retainer { return r.owner }

// NewSet creates and retains a new set.
func (r *Registry) NewSet(name string) (*Set, error) {
	if _, ok := r.index[name]; ok {
		return nil, newError(ErrIdentityConflict, "set %q is already registered", name)
	}
	s := newSet(name, r.env)
	if err := s.RetainedBy(r.owner); err != nil {
		return nil, err
	}
	r.sets = append(r.sets, s)
	r.index[name] = s
	r.log.V(1).Info("set registered", "set", name)
	return s, nil
}

// Set returns a registered set.
func (r *Registry) Set(name string) (*Set, error) {
	s, ok := r.index[name]
	if !ok {
		return nil, newError(ErrUnknownAttribute, "unknown set %q", name)
	}
	return s, nil
}

// Sets returns the registered sets in registration order.
func (r *Registry) Sets() []*Set { return slices.Clone(r.sets) }

// LoadCatalog parses a YAML or JSON catalog, creates the sets that do not exist yet, declares
// their attributes and records their fixtures. Fixtures are inserted by LoadFixtures.
func (r *Registry) LoadCatalog(data []byte) error {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("cannot parse catalog: %w", err)
	}

	for _, spec := range c.Sets {
		s, ok := r.index[spec.Name]
		if !ok {
			var err error
			if s, err = r.NewSet(spec.Name); err != nil {
				return err
			}
		}

		for _, as := range spec.Attributes {
			if err := declareAttribute(s, as); err != nil {
				return err
			}
		}

		if len(spec.Fixtures) == 0 {
			continue
		}
		if r.fixtures[s] == nil {
			r.fixtures[s] = map[string]map[string]any{}
		}
		maps.Copy(r.fixtures[s], spec.Fixtures)
	}
	return nil
}

func declareAttribute(s *Set, as AttributeSpec) error {
	if as.JSONPath != "" {
		_, err := s.AddJSONPathAttribute(as.Name, as.JSONPath)
		return err
	}
	typ, err := ParseType(as.Type)
	if err != nil {
		return err
	}
	_, err = s.AddAttribute(as.Name, typ, AttributeOptions{Default: as.Default})
	return err
}

// AddFixture records a fixture tuple for a set.
func (r *Registry) AddFixture(set *Set, id string, fields map[string]any) {
	if r.fixtures[set] == nil {
		r.fixtures[set] = map[string]map[string]any{}
	}
	r.fixtures[set][id] = fields
}

// LoadFixtures inserts the recorded fixtures, set by set in registration order and by id within a
// set. The creation hook does not run on fixtures.
func (r *Registry) LoadFixtures() error {
	for _, s := range r.sets {
		fixtures := r.fixtures[s]
		if len(fixtures) == 0 {
			continue
		}

		prev := s.EnableCreateHook(false)
		err := func() error {
			for _, id := range slices.Sorted(maps.Keys(fixtures)) {
				t, err := s.NewTupleWithID(id, fixtures[id])
				if err != nil {
					return fmt.Errorf("fixture %s/%s: %w", s.name, id, err)
				}
				if err := s.Insert(t); err != nil {
					return fmt.Errorf("fixture %s/%s: %w", s.name, id, err)
				}
			}
			return nil
		}()
		s.EnableCreateHook(prev)
		if err != nil {
			return err
		}
		r.log.V(2).Info("fixtures loaded", "set", s.name, "tuples", len(fixtures))
	}
	return nil
}

// Clear deletes every tuple of every set.
func (r *Registry) Clear() error {
	for _, s := range r.sets {
		if err := s.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every set. Sets not retained elsewhere drop their tuples.
func (r *Registry) Close() error {
	errs := []error{}
	for _, s := range r.sets {
		if s.IsRetainedBy(r.owner) {
			errs = append(errs, s.ReleasedBy(r.owner))
		}
	}
	r.log.V(1).Info("registry closed")
	return errors.Join(errs...)
}
