package relation

import (
	"context"
	"encoding/json"
	"slices"
)

// FieldEdit is the declared final state of one related-entity field on
// an entity's edit form. For a forward field, Declared lists the objects
// the entity should point at. For an inverse field, Declared lists the
// subjects that should point at the entity.
//
// A field the user never touched must not appear in the slice at all:
// absence means "leave this field's edges alone". A Declared list whose
// only element is the empty string means "clear every edge of this
// field" (the placeholder is stripped before diffing).
type FieldEdit struct {
	Name      string
	Predicate string
	Inverse   bool
	Declared  []string
}

// Snapshot is an entity's prior relationship state keyed by field name,
// captured when the edit form was built and carried opaquely through
// the round-trip so the reconciler does not have to trust a re-query
// racing with the user's edit.
type Snapshot map[string][]string

// ParseSnapshot decodes the serialized form of a snapshot. A missing or
// corrupt snapshot yields nil, which makes the reconciler fall back to
// live store queries; the failure is never surfaced.
func ParseSnapshot(raw string) Snapshot {
	if raw == "" {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil
	}
	return snap
}

// Encode serializes the snapshot for embedding in an edit form.
func (snap Snapshot) Encode() string {
	if snap == nil {
		snap = Snapshot{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		// A map[string][]string always marshals.
		panic(err)
	}
	return string(raw)
}

// Reconcile brings the store in line with the declared state of an
// entity's relationship fields, mutating only the edges that actually
// changed.
//
// Per field it computes additions (declared minus prior) and deletions
// (prior minus declared). Forward-field mutations target self's own
// adjacency record; inverse-field mutations target the records of the
// other entities in the list, with self as the object. All fields'
// mutations are merged into one addition batch and one deletion batch,
// each applied atomically. The two batches touch disjoint edges by
// construction, so their relative order is unobservable.
func (s *Store) Reconcile(ctx context.Context, self string, fields []FieldEdit, snap Snapshot) error {
	additions := make(Batch)
	deletions := make(Batch)

	for _, field := range fields {
		declared := stripPlaceholder(field.Declared)
		if !field.Inverse {
			// An entity may not declare a relation to itself.
			if i := slices.Index(declared, self); i >= 0 {
				declared = slices.Delete(declared, i, i+1)
			}
		}

		prior, err := s.priorState(ctx, self, field, snap)
		if err != nil {
			return err
		}

		added, removed := diff(prior, declared)

		if field.Inverse {
			for _, other := range added {
				additions.Insert(other, field.Predicate, self)
			}
			for _, other := range removed {
				deletions.Insert(other, field.Predicate, self)
			}
		} else {
			additions.Insert(self, field.Predicate, added...)
			deletions.Insert(self, field.Predicate, removed...)
		}
	}

	if err := s.Add(ctx, additions); err != nil {
		return err
	}
	_, err := s.Remove(ctx, deletions)
	return err
}

// PriorState returns the snapshot of an entity's current edges for the
// given fields, for embedding in an edit form.
func (s *Store) PriorState(ctx context.Context, self string, fields []FieldEdit) (Snapshot, error) {
	snap := make(Snapshot, len(fields))
	for _, field := range fields {
		ids, err := s.queryField(ctx, self, field)
		if err != nil {
			return nil, err
		}
		snap[field.Name] = ids
	}
	return snap, nil
}

// priorState resolves one field's prior edge state, preferring the
// snapshot (even an empty entry) and falling back to a live query when
// the snapshot is missing or did not carry the field.
func (s *Store) priorState(ctx context.Context, self string, field FieldEdit, snap Snapshot) ([]string, error) {
	if snap != nil {
		if prior, ok := snap[field.Name]; ok {
			return prior, nil
		}
	}
	return s.queryField(ctx, self, field)
}

func (s *Store) queryField(ctx context.Context, self string, field FieldEdit) ([]string, error) {
	if field.Inverse {
		return s.Subjects(ctx, field.Predicate, self)
	}
	return s.Objects(ctx, self, field.Predicate)
}

// diff returns declared-minus-prior and prior-minus-declared, keeping
// each side's original order.
func diff(prior, declared []string) (added, removed []string) {
	for _, id := range declared {
		if !slices.Contains(prior, id) {
			added = append(added, id)
		}
	}
	for _, id := range prior {
		if !slices.Contains(declared, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// stripPlaceholder drops empty-string entries from a declared list. A
// list holding only the placeholder is how a form says "deliberately
// cleared" as opposed to "untouched".
func stripPlaceholder(declared []string) []string {
	out := make([]string, 0, len(declared))
	for _, id := range declared {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
