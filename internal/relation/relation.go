// Package relation implements the catalog's relation graph store.
//
// Relationships between catalog entities are directed, labeled edges:
// a subject entity relates to an object entity under a predicate such as
// "parent scheme" or "maintainer". Edges are stored denormalized as one
// adjacency record per subject in the "rel" collection of the document
// store:
//
//	{"@id": "msc:m1", "maintainer": ["msc:g1", "msc:g4"]}
//
// There is no reverse index; queries from the object side scan the
// collection. That is a deliberate trade-off for catalog scale
// (thousands of entities), not a general-purpose graph store.
//
// All mutations run inside a single scoped transaction: a batch either
// applies to every subject it names or to none of them.
package relation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mscwg/mscat/internal/docstore"
	"github.com/mscwg/mscat/internal/identifier"
)

// Collection is the document-store collection holding adjacency records.
const Collection = "rel"

// subjectKey is the reserved adjacency-record key naming the subject.
// Every other key is a predicate.
const subjectKey = "@id"

// Batch maps subject ID -> predicate -> object IDs. It is the unit of
// mutation for Add and Remove.
type Batch map[string]map[string][]string

// Insert appends an edge to the batch, creating the nested maps as
// needed. It does not deduplicate; Add handles that against the store.
func (b Batch) Insert(subject, predicate string, objects ...string) {
	if len(objects) == 0 {
		return
	}
	properties, ok := b[subject]
	if !ok {
		properties = make(map[string][]string)
		b[subject] = properties
	}
	properties[predicate] = append(properties[predicate], objects...)
}

// Empty reports whether the batch carries no edges.
func (b Batch) Empty() bool {
	return len(b) == 0
}

// Store owns the adjacency collection. It is a thin layer over the
// document store; one Store per docstore.Store is the expected shape.
type Store struct {
	db *docstore.Store
}

// NewStore returns a relation store backed by db.
func NewStore(db *docstore.Store) *Store {
	return &Store{db: db}
}

// Add merges the batch's edges into the store. Adjacency records are
// created lazily for new subjects; objects already present under a
// predicate are not duplicated; every touched edge list is re-sorted
// into canonical MSC ID order. The whole batch commits atomically.
func (s *Store) Add(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for subject, properties := range batch {
		edges, err := s.loadEdges(ctx, tx, subject)
		if err != nil {
			return err
		}

		for predicate, objects := range properties {
			merged := edges[predicate]
			for _, object := range objects {
				if !slices.Contains(merged, object) {
					merged = append(merged, object)
				}
			}
			if len(merged) == 0 {
				continue
			}
			identifier.SortStrings(merged)
			edges[predicate] = merged
		}

		if err := s.storeEdges(ctx, tx, subject, edges); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Remove deletes the batch's edges from the store where they exist and
// returns a batch of the same shape holding only the edges that were
// actually removed. Edges that are not present are skipped silently.
// A predicate left with no objects is dropped from its record; the
// record itself is kept even when its last predicate goes (the queries
// filter such soft-empty records out). Atomic like Add.
func (s *Store) Remove(ctx context.Context, batch Batch) (Batch, error) {
	removed := make(Batch)
	if batch.Empty() {
		return removed, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for subject, properties := range batch {
		body, err := tx.Get(ctx, Collection, subject)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		edges, err := decodeEdges(subject, body)
		if err != nil {
			return nil, err
		}

		changed := false
		for predicate, objects := range properties {
			remaining, ok := edges[predicate]
			if !ok {
				continue
			}
			for _, object := range objects {
				i := slices.Index(remaining, object)
				if i < 0 {
					continue
				}
				remaining = slices.Delete(remaining, i, i+1)
				removed.Insert(subject, predicate, object)
				changed = true
			}
			if len(remaining) == 0 {
				delete(edges, predicate)
			} else {
				edges[predicate] = remaining
			}
		}

		if changed {
			if err := s.storeEdges(ctx, tx, subject, edges); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, properties := range removed {
		for predicate := range properties {
			identifier.SortStrings(properties[predicate])
		}
	}
	return removed, nil
}

// Subjects returns the IDs of all entities that originate at least one
// edge matching the filters, in canonical order. Empty-string filters
// are wildcards. Records holding a subject but no remaining predicates
// do not count.
func (s *Store) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	records, err := s.allEdges(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for subject, edges := range records {
		if len(edges) == 0 {
			continue
		}
		switch {
		case predicate == "" && object == "":
			seen[subject] = true
		case object == "":
			if _, ok := edges[predicate]; ok {
				seen[subject] = true
			}
		case predicate == "":
			for _, objects := range edges {
				if slices.Contains(objects, object) {
					seen[subject] = true
					break
				}
			}
		default:
			if slices.Contains(edges[predicate], object) {
				seen[subject] = true
			}
		}
	}

	return sortedKeys(seen), nil
}

// Objects returns the IDs of all entities reachable over edges matching
// the filters, in canonical order. Empty-string filters are wildcards.
func (s *Store) Objects(ctx context.Context, subject, predicate string) ([]string, error) {
	records, err := s.allEdges(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for recordSubject, edges := range records {
		if subject != "" && recordSubject != subject {
			continue
		}
		for recordPredicate, objects := range edges {
			if predicate != "" && recordPredicate != predicate {
				continue
			}
			for _, object := range objects {
				seen[object] = true
			}
		}
	}

	return sortedKeys(seen), nil
}

// Edges returns a subject's full adjacency record, keyed by predicate.
// A subject with no record yields an empty map.
func (s *Store) Edges(ctx context.Context, subject string) (map[string][]string, error) {
	body, err := s.db.Get(ctx, Collection, subject)
	if errors.Is(err, docstore.ErrNotFound) {
		return make(map[string][]string), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEdges(subject, body)
}

// All returns every adjacency record, keyed by subject, ordered by the
// subjects' sort keys. Soft records with no remaining edges are
// skipped.
func (s *Store) All(ctx context.Context) ([]string, map[string]map[string][]string, error) {
	records, err := s.allEdges(ctx)
	if err != nil {
		return nil, nil, err
	}
	subjects := make([]string, 0, len(records))
	for subject, edges := range records {
		if len(edges) == 0 {
			delete(records, subject)
			continue
		}
		subjects = append(subjects, subject)
	}
	identifier.SortStrings(subjects)
	return subjects, records, nil
}

// loadEdges reads a subject's adjacency record inside tx, returning an
// empty edge map when the record does not exist yet.
func (s *Store) loadEdges(ctx context.Context, tx *docstore.Tx, subject string) (map[string][]string, error) {
	body, err := tx.Get(ctx, Collection, subject)
	if errors.Is(err, docstore.ErrNotFound) {
		return make(map[string][]string), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEdges(subject, body)
}

func (s *Store) storeEdges(ctx context.Context, tx *docstore.Tx, subject string, edges map[string][]string) error {
	body, err := encodeEdges(subject, edges)
	if err != nil {
		return err
	}
	return tx.Put(ctx, Collection, subject, body)
}

// allEdges loads every adjacency record for the scan queries.
func (s *Store) allEdges(ctx context.Context) (map[string]map[string][]string, error) {
	docs, err := s.db.All(ctx, Collection)
	if err != nil {
		return nil, err
	}

	records := make(map[string]map[string][]string, len(docs))
	for _, doc := range docs {
		edges, err := decodeEdges(doc.Key, doc.Body)
		if err != nil {
			return nil, err
		}
		records[doc.Key] = edges
	}
	return records, nil
}

// decodeEdges parses an adjacency record body. An unexpected shape (a
// predicate whose value is not a list of strings, or an @id that does
// not match the record's key) is an error: mid-transaction it aborts
// the whole batch.
func decodeEdges(subject string, body json.RawMessage) (map[string][]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("relation: malformed adjacency record for %s: %w", subject, err)
	}

	edges := make(map[string][]string, len(raw))
	for key, value := range raw {
		if key == subjectKey {
			var id string
			if err := json.Unmarshal(value, &id); err != nil || id != subject {
				return nil, fmt.Errorf("relation: adjacency record for %s has subject %s", subject, value)
			}
			continue
		}
		var objects []string
		if err := json.Unmarshal(value, &objects); err != nil {
			return nil, fmt.Errorf("relation: adjacency record for %s has malformed edge list %q: %w", subject, key, err)
		}
		edges[key] = objects
	}
	return edges, nil
}

func encodeEdges(subject string, edges map[string][]string) (json.RawMessage, error) {
	record := make(map[string]any, len(edges)+1)
	record[subjectKey] = subject
	for predicate, objects := range edges {
		record[predicate] = objects
	}
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("relation: failed to encode adjacency record for %s: %w", subject, err)
	}
	return body, nil
}

func sortedKeys(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	identifier.SortStrings(ids)
	return ids
}
