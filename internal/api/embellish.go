package api

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mscwg/mscat/internal/record"
)

// embellisher decorates records with their identifiers and related
// entities. The seen cache is scoped to a single request so that a
// record referenced from several roles is only loaded and serialized
// once.
type embellisher struct {
	catalog *record.Catalog
	base    string
	seen    map[string]map[string]any
}

func newEmbellisher(catalog *record.Catalog, base string) *embellisher {
	return &embellisher{
		catalog: catalog,
		base:    base,
		seen:    make(map[string]map[string]any),
	}
}

// record serializes one record, optionally embedding the data of each
// related entity one level deep.
func (e *embellisher) record(ctx context.Context, r *record.Record, withEmbedded bool) (map[string]any, error) {
	mscid := r.IDString()
	data := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		data[k] = v
	}
	data["mscid"] = mscid
	data["uri"] = fmt.Sprintf("%s/api2/%s%d", e.base, r.Series.Code, r.Number)

	related, err := e.catalog.Related(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return data, nil
	}

	roles := make([]string, 0, len(related))
	for role := range related {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var entities []any
	for _, role := range roles {
		for _, id := range related[role] {
			entity := map[string]any{
				"id":   id,
				"role": role,
			}
			if withEmbedded {
				embedded, err := e.lookup(ctx, id)
				if err != nil {
					return nil, err
				}
				if embedded != nil {
					entity["data"] = embedded
				}
			}
			entities = append(entities, entity)
		}
	}
	if entities != nil {
		data["relatedEntities"] = entities
	}
	return data, nil
}

// lookup fetches and serializes the record behind an identifier,
// without further embedding. Identifiers that do not resolve yield nil
// rather than an error so that a dangling edge cannot break the whole
// response.
func (e *embellisher) lookup(ctx context.Context, id string) (map[string]any, error) {
	if data, ok := e.seen[id]; ok {
		return data, nil
	}
	r, err := e.catalog.LoadByID(ctx, id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			e.seen[id] = nil
			return nil, nil
		}
		return nil, err
	}
	data, err := e.record(ctx, r, false)
	if err != nil {
		return nil, err
	}
	e.seen[id] = data
	return data, nil
}
