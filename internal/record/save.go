package record

import (
	"context"
	"maps"

	"github.com/mscwg/mscat/internal/relation"
)

// snapshotField is the submission key carrying the prior-relationship
// snapshot through an edit round-trip. It is bookkeeping, never stored.
const snapshotField = "old_relations"

// EditState prepares a record for editing: a copy of its document data
// with the current relationships filled into the series' field names,
// keyword URIs translated back to labels, plus the encoded snapshot to
// carry through the round-trip.
func (c *Catalog) EditState(ctx context.Context, r *Record) (map[string]any, string, error) {
	data := make(map[string]any, len(r.Data)+len(r.Series.Fields))
	maps.Copy(data, r.Data)

	edits := make([]relation.FieldEdit, 0, len(r.Series.Fields))
	for _, field := range r.Series.Fields {
		edits = append(edits, field.Edit(nil))
	}

	snap := relation.Snapshot{}
	if r.Saved() {
		var err error
		snap, err = c.Relations.PriorState(ctx, r.IDString(), edits)
		if err != nil {
			return nil, "", err
		}
	}
	for name, ids := range snap {
		if len(ids) > 0 {
			data[name] = ids
		}
	}

	if c.Keywords != nil {
		if uris := stringList(data["keywords"]); uris != nil {
			labels := make([]string, 0, len(uris))
			for _, uri := range uris {
				if label := c.Keywords.LabelForURI(uri); label != "" {
					labels = append(labels, label)
				}
			}
			data["keywords"] = labels
		}
	}

	return data, snap.Encode(), nil
}

// SaveSubmission runs the full edit workflow for a submitted record:
// relation fields are split off and reconciled against the relation
// store, keywords are canonicalized to thesaurus URIs, and the
// remaining data is cleaned and saved as the record's document. New
// records get their sequence number before their relationships are
// written, since the edges need the record's ID.
//
// Relation-field semantics follow the form contract: a field absent
// from the submission is untouched; a field present with only the
// empty-string placeholder is cleared; otherwise the submitted list is
// the field's complete new state.
func (c *Catalog) SaveSubmission(ctx context.Context, r *Record, submission map[string]any) error {
	data := make(map[string]any, len(submission))
	maps.Copy(data, submission)

	// Version history is managed outside the edit form; restore it.
	if _, ok := data["versions"]; !ok {
		if versions, ok := r.Data["versions"]; ok {
			data["versions"] = versions
		}
	}

	var fields []relation.FieldEdit
	for _, field := range r.Series.Fields {
		raw, ok := data[field.Name]
		if !ok {
			continue
		}
		declared := stringList(raw)
		if declared == nil {
			// Not a list; leave the field's edges alone.
			delete(data, field.Name)
			continue
		}
		fields = append(fields, field.Edit(declared))
		delete(data, field.Name)
	}

	snapRaw, _ := data[snapshotField].(string)
	snap := relation.ParseSnapshot(snapRaw)
	delete(data, snapshotField)

	if c.Keywords != nil {
		if labels := stringList(data["keywords"]); labels != nil {
			uris := make([]string, 0, len(labels))
			for _, label := range labels {
				if uri := c.Keywords.URIForLabel(label); uri != "" {
					uris = append(uris, uri)
				}
			}
			data["keywords"] = uris
		}
	}

	r.Data = data
	if err := c.Save(ctx, r); err != nil {
		return err
	}

	return c.Relations.Reconcile(ctx, r.IDString(), fields, snap)
}

// Cleanup recursively removes entries whose value is an empty string,
// an empty list, a map wherein every value is empty, or null. Zero
// numbers and false are kept. Edit-workflow bookkeeping keys are
// stripped as well.
func Cleanup(data map[string]any) map[string]any {
	cleaned, _ := cleanupValue(data)
	if m, ok := cleaned.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func cleanupValue(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		return v, v != ""
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if key == snapshotField {
				continue
			}
			if cleaned, keep := cleanupValue(item); keep {
				out[key] = cleaned
			}
		}
		return out, len(out) > 0
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if cleaned, keep := cleanupValue(item); keep {
				out = append(out, cleaned)
			}
		}
		return out, len(out) > 0
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item != "" {
				out = append(out, item)
			}
		}
		return out, len(out) > 0
	default:
		// Numbers, booleans and anything exotic pass through; zero is
		// a value, not an absence.
		return v, true
	}
}

// stringList coerces a submitted field value into a string slice,
// accepting both []string and JSON-decoded []any. A nil result means
// the value was not a list.
func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
