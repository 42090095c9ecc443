// Package query implements declarative query documents that are built into relation trees.
//
// A query names a base set, an optional list of joins, a filter, a sort order and an optional
// projection:
//
//	from: photos
//	join:
//	  - with: users
//	    on:
//	      EqualTo: ["@photos.user_id", "@users.id"]
//	where:
//	  GreaterThan: ["@users.age", 30]
//	orderBy:
//	  - attribute: users.name
//	    descending: true
//	project: users
//
// The operators are applied in this order: joins, filter, projection, ordering.
package query

import (
	encodingjson "encoding/json"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/liverel/pkg/predicate"
	"github.com/l7mp/liverel/pkg/relation"
	"github.com/l7mp/liverel/pkg/util"
)

// Query is a declarative query.
type Query struct {
	// From is the name of the base set. Mandatory.
	From string `json:"from"`
	// Joins are applied left to right on the base set.
	Joins []Join `json:"join,omitempty"`
	// Where is an optional filter applied after the joins.
	Where *predicate.Predicate `json:"where,omitempty"`
	// OrderBy sorts the result.
	OrderBy []Order `json:"orderBy,omitempty"`
	// Project, if given, names the set the result is projected onto.
	Project string `json:"project,omitempty"`
	// Singleton constrains the result to at most one tuple.
	Singleton bool `json:"singleton,omitempty"`
}

// Join joins the result so far with another set.
type Join struct {
	// With is the name of the set to join.
	With string `json:"with"`
	// On is the join predicate.
	On predicate.Predicate `json:"on"`
}

// UnmarshalJSON decodes a join. YAML 1.1 reads a bare "on" key as the boolean true, so "true" is
// accepted as an alias of "on".
func (j *Join) UnmarshalJSON(data []byte) error {
	var raw map[string]encodingjson.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["true"]; ok {
		if _, dup := raw["on"]; dup {
			return errors.New("invalid join: duplicate predicate")
		}
		raw["on"] = v
		delete(raw, "true")
	}
	for k := range raw {
		if k != "with" && k != "on" {
			return fmt.Errorf("invalid join: unknown field %q", k)
		}
	}

	with, ok := raw["with"]
	if !ok {
		return errors.New("invalid join: with is mandatory")
	}
	on, ok := raw["on"]
	if !ok {
		return errors.New("invalid join: on is mandatory")
	}
	*j = Join{}
	if err := json.Unmarshal(with, &j.With); err != nil {
		return err
	}
	return j.On.UnmarshalJSON(on)
}

// Order is a sort term.
type Order struct {
	Attribute  string `json:"attribute"`
	Descending bool   `json:"descending,omitempty"`
}

// Sets is the source of the named sets a query refers to. *relation.Registry implements it.
type Sets interface {
	Set(name string) (*relation.Set, error)
}

// Parse decodes a query from a YAML or JSON document.
func Parse(data []byte) (*Query, error) {
	q := &Query{}
	if err := yaml.UnmarshalStrict(data, q); err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	if q.From == "" {
		return nil, errors.New("invalid query: from is mandatory")
	}
	return q, nil
}

// String returns the query in JSON form.
func (q *Query) String() string { return util.Stringify(q) }

// Build creates the relation tree of the query. Named signals can be referenced from predicates
// as "$name". The result is not retained.
func (q *Query) Build(sets Sets, signals map[string]relation.Signal) (relation.Relation, error) {
	from, err := sets.Set(q.From)
	if err != nil {
		return nil, err
	}

	var r relation.Relation = from
	for i, j := range q.Joins {
		with, err := sets.Set(j.With)
		if err != nil {
			return nil, err
		}
		pj := r.Join(with)
		p, err := j.On.Compile(pj, signals)
		if err != nil {
			return nil, fmt.Errorf("invalid predicate in join %d: %w", i, err)
		}
		r = pj.On(p)
	}

	if q.Where != nil {
		p, err := q.Where.Compile(r, signals)
		if err != nil {
			return nil, fmt.Errorf("invalid where predicate: %w", err)
		}
		r = r.Where(p)
	}

	if q.Project != "" {
		set, err := sets.Set(q.Project)
		if err != nil {
			return nil, err
		}
		p, err := r.Project(set)
		if err != nil {
			return nil, err
		}
		r = p
	}

	if len(q.OrderBy) > 0 {
		terms := make([]relation.OrderTerm, len(q.OrderBy))
		for i, o := range q.OrderBy {
			attr, err := r.Attribute(o.Attribute)
			if err != nil {
				return nil, err
			}
			terms[i] = relation.OrderTerm{Attribute: attr, Descending: o.Descending}
		}
		r = r.OrderBy(terms...)
	}

	if q.Singleton {
		r = r.Singleton()
	}

	return r, nil
}
