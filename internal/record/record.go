// Package record implements the catalog's entity records: metadata
// schemes, organizations, tools, mappings, endorsements, and datatype
// terms.
//
// Records are schemaless JSON documents stored per series in the
// document store, identified by MSC IDs whose sequence numbers are
// allocated on first save and never reused. The relationships between
// records live in the relation store, not in the documents themselves;
// this package owns the save workflow that keeps the two consistent.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mscwg/mscat/internal/docstore"
	"github.com/mscwg/mscat/internal/identifier"
	"github.com/mscwg/mscat/internal/relation"
)

var (
	// ErrNotFound covers both records that do not exist and malformed
	// MSC IDs: a string that does not parse names no entity.
	ErrNotFound = errors.New("record: not found")

	// ErrUnknownSeries is returned for collection codes the catalog
	// does not define.
	ErrUnknownSeries = errors.New("record: unknown series")
)

// KeywordTranslator translates free-text subject keywords to and from
// canonical thesaurus URIs. The zero value of Catalog leaves it nil, in
// which case keywords are stored verbatim.
type KeywordTranslator interface {
	URIForLabel(label string) string
	LabelForURI(uri string) string
}

// Catalog bundles the stores a record operation needs. It is passed
// explicitly everywhere - one Catalog per process or per test, never
// ambient global state.
type Catalog struct {
	Data      *docstore.Store
	Vocab     *docstore.Store
	Relations *relation.Store
	Keywords  KeywordTranslator
}

// NewCatalog returns a Catalog over the given main and vocabulary
// stores.
func NewCatalog(data, vocab *docstore.Store) *Catalog {
	return &Catalog{
		Data:      data,
		Vocab:     vocab,
		Relations: relation.NewStore(data),
	}
}

// Record is one catalog entity. Number is zero until the record is
// first saved.
type Record struct {
	Series Series
	Number int
	Data   map[string]any
}

// ID returns the record's MSC ID. Only valid once the record is saved.
func (r *Record) ID() identifier.MSCID {
	return identifier.MSCID{Series: r.Series.Code, Number: r.Number}
}

// IDString returns the canonical string form of the record's MSC ID.
func (r *Record) IDString() string {
	return r.ID().String()
}

// Name returns the record's display name, or a placeholder when the
// name field is empty.
func (r *Record) Name() string {
	if name, ok := r.Data[r.Series.NameField].(string); ok && name != "" {
		return name
	}
	return "Unnamed " + r.Series.Name
}

// Saved reports whether the record exists in the store.
func (r *Record) Saved() bool {
	return r.Number > 0
}

// storeFor returns the document store holding a series' collection.
func (c *Catalog) storeFor(s Series) *docstore.Store {
	if s.Vocab {
		return c.Vocab
	}
	return c.Data
}

// New returns a blank unsaved record in the given series.
func (c *Catalog) New(code string) (*Record, error) {
	s, ok := SeriesByCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeries, code)
	}
	return &Record{Series: s, Data: make(map[string]any)}, nil
}

// Load retrieves a record by series code and number. A number with no
// stored document yields a blank unsaved record (Number 0) so that the
// edit workflow can offer a fresh form, matching LoadByID's soft
// handling of bad references.
func (c *Catalog) Load(ctx context.Context, code string, number int) (*Record, error) {
	s, ok := SeriesByCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeries, code)
	}

	r := &Record{Series: s, Data: make(map[string]any)}
	if number <= 0 {
		return r, nil
	}

	body, err := c.storeFor(s).Get(ctx, s.Code, strconv.Itoa(number))
	if errors.Is(err, docstore.ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, &r.Data); err != nil {
		return nil, fmt.Errorf("record: malformed document %s%d: %w", code, number, err)
	}
	r.Number = number
	return r, nil
}

// LoadByID retrieves the record named by an MSC ID string. Malformed
// IDs, unknown series and missing numbers all come back as ErrNotFound:
// a reference that cannot be resolved names no entity.
func (c *Catalog) LoadByID(ctx context.Context, mscid string) (*Record, error) {
	id, err := identifier.Parse(mscid)
	if err != nil {
		return nil, ErrNotFound
	}

	r, err := c.Load(ctx, id.Series, id.Number)
	if errors.Is(err, ErrUnknownSeries) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !r.Saved() {
		return nil, ErrNotFound
	}
	return r, nil
}

// All returns every saved record in a series, in ID order.
func (c *Catalog) All(ctx context.Context, code string) ([]*Record, error) {
	s, ok := SeriesByCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeries, code)
	}

	docs, err := c.storeFor(s).All(ctx, s.Code)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		number, err := strconv.Atoi(doc.Key)
		if err != nil {
			return nil, fmt.Errorf("record: bad document key %s/%s", s.Code, doc.Key)
		}
		r := &Record{Series: s, Number: number, Data: make(map[string]any)}
		if err := json.Unmarshal(doc.Body, &r.Data); err != nil {
			return nil, fmt.Errorf("record: malformed document %s%d: %w", s.Code, number, err)
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Number < records[j].Number
	})
	return records, nil
}

// Choice is one entry in a related-entity selection list.
type Choice struct {
	ID   string
	Name string
}

// Choices returns the selectable records of a series as (ID, name)
// pairs sorted by name, for populating edit-form fields.
func (c *Catalog) Choices(ctx context.Context, code string) ([]Choice, error) {
	records, err := c.All(ctx, code)
	if err != nil {
		return nil, err
	}

	choices := make([]Choice, 0, len(records))
	for _, r := range records {
		choices = append(choices, Choice{ID: r.IDString(), Name: r.Name()})
	}
	sort.Slice(choices, func(i, j int) bool {
		return strings.ToLower(choices[i].Name) < strings.ToLower(choices[j].Name)
	})
	return choices, nil
}

// Save persists the record's document, allocating its sequence number
// on first save. Relationship fields are not part of the document; use
// SaveSubmission for the full edit workflow.
func (c *Catalog) Save(ctx context.Context, r *Record) error {
	data := Cleanup(r.Data)

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("record: failed to encode %s record: %w", r.Series.Name, err)
	}

	store := c.storeFor(r.Series)
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if !r.Saved() {
		number, err := tx.NextSequence(ctx, r.Series.Code)
		if err != nil {
			return err
		}
		r.Number = number
	}

	if err := tx.Put(ctx, r.Series.Code, strconv.Itoa(r.Number), body); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.Data = data
	return nil
}

// Related returns the record's current relationships keyed by field
// name, omitting fields with no edges.
func (c *Catalog) Related(ctx context.Context, r *Record) (map[string][]string, error) {
	related := make(map[string][]string)
	for _, field := range r.Series.Fields {
		var (
			ids []string
			err error
		)
		if field.Inverse {
			ids, err = c.Relations.Subjects(ctx, field.Predicate, r.IDString())
		} else {
			ids, err = c.Relations.Objects(ctx, r.IDString(), field.Predicate)
		}
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			related[field.Name] = ids
		}
	}
	return related, nil
}
