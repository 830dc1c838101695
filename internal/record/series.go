package record

import "github.com/mscwg/mscat/internal/relation"

// RelatedField is one related-entity field on a series' edit form. Name
// is the field (and snapshot) key; Predicate is the relationship label
// from the subject's perspective. A forward field declares edges that
// originate at the record being edited; an inverse field declares edges
// that originate at the listed entities and point back at it. Target
// names the series the field's choices are drawn from.
type RelatedField struct {
	Name      string
	Label     string
	Predicate string
	Inverse   bool
	Target    string
}

// Series describes one entity collection in the catalog.
type Series struct {
	// Code is the collection code used in MSC IDs ("m", "g", ...).
	Code string
	// Name is the human-readable series name ("scheme", ...).
	Name string
	// NameField is the document field holding the display name.
	NameField string
	// Vocab marks series stored in the vocabulary database rather than
	// the main one.
	Vocab bool
	// Fields are the series' related-entity fields, in display order.
	Fields []RelatedField
}

// FieldByName returns the named related-entity field, if the series has
// it.
func (s Series) FieldByName(name string) (RelatedField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return RelatedField{}, false
}

// Edit converts a field's declared value into the diff engine's input.
func (f RelatedField) Edit(declared []string) relation.FieldEdit {
	return relation.FieldEdit{
		Name:      f.Name,
		Predicate: f.Predicate,
		Inverse:   f.Inverse,
		Declared:  declared,
	}
}

// The catalog's series. Predicates are shared between their forward and
// inverse declaration sites: "parent scheme" appears on the child's form
// as a forward field and on the parent's form as an inverse one.
var seriesList = []Series{
	{
		Code:      "m",
		Name:      "scheme",
		NameField: "title",
		Fields: []RelatedField{
			{Name: "parent_schemes", Label: "Parent metadata schemes", Predicate: "parent scheme", Target: "m"},
			{Name: "child_schemes", Label: "Profiles of this scheme", Predicate: "parent scheme", Inverse: true, Target: "m"},
			{Name: "input_to_mappings", Label: "Mappings that take this scheme as input", Predicate: "input scheme", Inverse: true, Target: "c"},
			{Name: "output_from_mappings", Label: "Mappings that give this scheme as output", Predicate: "output scheme", Inverse: true, Target: "c"},
			{Name: "maintainers", Label: "Organizations that maintain this scheme", Predicate: "maintainer", Target: "g"},
			{Name: "funders", Label: "Organizations that funded this scheme", Predicate: "funder", Target: "g"},
			{Name: "users", Label: "Organizations that use this scheme", Predicate: "user", Target: "g"},
			{Name: "tools", Label: "Tools that support this scheme", Predicate: "supported scheme", Inverse: true, Target: "t"},
			{Name: "endorsements", Label: "Endorsements of this scheme", Predicate: "endorsed scheme", Inverse: true, Target: "e"},
		},
	},
	{
		Code:      "g",
		Name:      "organization",
		NameField: "name",
		Fields: []RelatedField{
			{Name: "maintained_schemes", Label: "Metadata schemes maintained by this organization", Predicate: "maintainer", Inverse: true, Target: "m"},
			{Name: "funded_schemes", Label: "Metadata schemes funded by this organization", Predicate: "funder", Inverse: true, Target: "m"},
			{Name: "used_schemes", Label: "Metadata schemes used by this organization", Predicate: "user", Inverse: true, Target: "m"},
			{Name: "maintained_tools", Label: "Tools maintained by this organization", Predicate: "maintainer", Inverse: true, Target: "t"},
		},
	},
	{
		Code:      "t",
		Name:      "tool",
		NameField: "title",
		Fields: []RelatedField{
			{Name: "supported_schemes", Label: "Metadata schemes supported by this tool", Predicate: "supported scheme", Target: "m"},
			{Name: "maintainers", Label: "Organizations that maintain this tool", Predicate: "maintainer", Target: "g"},
			{Name: "funders", Label: "Organizations that funded this tool", Predicate: "funder", Target: "g"},
		},
	},
	{
		Code:      "c",
		Name:      "mapping",
		NameField: "name",
		Fields: []RelatedField{
			{Name: "input_schemes", Label: "Input metadata schemes", Predicate: "input scheme", Target: "m"},
			{Name: "output_schemes", Label: "Output metadata schemes", Predicate: "output scheme", Target: "m"},
			{Name: "maintainers", Label: "Organizations that maintain this mapping", Predicate: "maintainer", Target: "g"},
			{Name: "funders", Label: "Organizations that funded this mapping", Predicate: "funder", Target: "g"},
		},
	},
	{
		Code:      "e",
		Name:      "endorsement",
		NameField: "title",
		Fields: []RelatedField{
			{Name: "endorsed_schemes", Label: "Endorsed metadata schemes", Predicate: "endorsed scheme", Target: "m"},
			{Name: "originators", Label: "Organizations that issued this endorsement", Predicate: "originator", Target: "g"},
		},
	},
	{
		Code:      "datatype",
		Name:      "datatype",
		NameField: "label",
		Vocab:     true,
	},
}

var seriesByCode = func() map[string]Series {
	m := make(map[string]Series, len(seriesList))
	for _, s := range seriesList {
		m[s.Code] = s
	}
	return m
}()

// AllSeries returns every series in display order.
func AllSeries() []Series {
	return seriesList
}

// SeriesByCode looks up a series by its collection code.
func SeriesByCode(code string) (Series, bool) {
	s, ok := seriesByCode[code]
	return s, ok
}
