package relation

import (
	"context"
	"fmt"
)

// Row is a raw record fetched from persistence, keyed by attribute name.
type Row = map[string]any

// Repository is the persistence collaborator. Fetch returns the rows matching a relation, Push
// writes the tuples of a relation.
type Repository interface {
	Fetch(ctx context.Context, r Relation) ([]Row, error)
	Push(ctx context.Context, r Relation) error
}

// Pull fetches the rows of a relation and merges them into its base set. Fetched tuples are
// neither new nor dirty.
func Pull(ctx context.Context, repo Repository, r Relation) error {
	set, err := r.BaseSet()
	if err != nil {
		return err
	}
	rows, err := repo.Fetch(ctx, r)
	if err != nil {
		return fmt.Errorf("cannot fetch %s: %w", r, err)
	}

	tuples := make([]*PrimitiveTuple, 0, len(rows))
	for _, row := range rows {
		t, err := TupleFromRow(set, row)
		if err != nil {
			return err
		}
		tuples = append(tuples, t)
	}
	set.log.V(2).Info("pulled", "relation", r.String(), "rows", len(rows))
	return r.Merge(tuples)
}

// TupleFromRow builds a tuple of a set from a raw row. Unknown columns are ignored.
func TupleFromRow(set *Set, row Row) (*PrimitiveTuple, error) {
	id, ok := row[IDAttribute].(string)
	if !ok {
		return nil, newError(ErrInvalidValue, "row of set %q has no string id: %v", set.name, row[IDAttribute])
	}
	fields := map[string]any{}
	for _, attr := range set.PrimitiveAttributes() {
		if v, ok := row[attr.name]; ok && attr != set.idAttr {
			fields[attr.name] = v
		}
	}
	t, err := set.NewTupleWithID(id, fields)
	if err != nil {
		return nil, err
	}
	t.Pushed()
	return t, nil
}

// Push writes the tuples of a relation and marks them pushed. A compound relation is pushed as
// one projection per composed set.
func Push(ctx context.Context, repo Repository, r Relation) error {
	if r.IsCompound() {
		for _, set := range distinctSets(r.ComposedSets()) {
			p, err := r.Project(set)
			if err != nil {
				return err
			}
			if err := Push(ctx, repo, p); err != nil {
				return err
			}
		}
		return nil
	}

	if err := repo.Push(ctx, r); err != nil {
		return fmt.Errorf("cannot push %s: %w", r, err)
	}
	tuples, err := r.Tuples()
	if err != nil {
		return err
	}
	for _, t := range tuples {
		for _, p := range t.Primitives() {
			p.Pushed()
		}
	}
	return nil
}
