package record

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mscwg/mscat/internal/docstore"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	data, err := docstore.Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatalf("Open data store failed: %v", err)
	}
	t.Cleanup(func() { _ = data.Close() })

	vocab, err := docstore.Open(filepath.Join(dir, "vocab.db"))
	if err != nil {
		t.Fatalf("Open vocab store failed: %v", err)
	}
	t.Cleanup(func() { _ = vocab.Close() })

	return NewCatalog(data, vocab)
}

func saveRecord(t *testing.T, c *Catalog, code string, data map[string]any) *Record {
	t.Helper()
	r, err := c.New(code)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r.Data = data
	if err := c.Save(context.Background(), r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return r
}

func TestSaveAssignsSequentialNumbers(t *testing.T) {
	c := openTestCatalog(t)

	r1 := saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})
	r2 := saveRecord(t, c, "m", map[string]any{"title": "DataCite"})
	g1 := saveRecord(t, c, "g", map[string]any{"name": "DCMI"})

	if r1.Number != 1 || r2.Number != 2 {
		t.Errorf("scheme numbers = %d, %d, want 1, 2", r1.Number, r2.Number)
	}
	if g1.Number != 1 {
		t.Errorf("organization number = %d, want 1 (independent sequence)", g1.Number)
	}
	if r1.IDString() != "msc:m1" {
		t.Errorf("IDString = %q", r1.IDString())
	}
}

func TestLoadRoundTrip(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	saved := saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})

	r, err := c.Load(ctx, "m", saved.Number)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !r.Saved() || r.Name() != "Dublin Core" {
		t.Errorf("loaded record = %+v", r)
	}

	// A missing number yields a blank record, not an error.
	blank, err := c.Load(ctx, "m", 99)
	if err != nil {
		t.Fatalf("Load of missing number failed: %v", err)
	}
	if blank.Saved() {
		t.Errorf("missing record loaded as saved: %+v", blank)
	}

	if _, err := c.Load(ctx, "zz", 1); !errors.Is(err, ErrUnknownSeries) {
		t.Errorf("Load of unknown series: got %v", err)
	}
}

func TestLoadByID(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})

	r, err := c.LoadByID(ctx, "msc:m1")
	if err != nil {
		t.Fatalf("LoadByID failed: %v", err)
	}
	if r.Name() != "Dublin Core" {
		t.Errorf("LoadByID name = %q", r.Name())
	}

	// Malformed IDs, unknown series, and missing numbers all resolve
	// softly to "not found".
	for _, bad := range []string{"nonsense", "msc:zz1", "msc:m99", "m1"} {
		if _, err := c.LoadByID(ctx, bad); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadByID(%q): got %v, want ErrNotFound", bad, err)
		}
	}
}

func TestChoicesSortedByName(t *testing.T) {
	c := openTestCatalog(t)

	saveRecord(t, c, "g", map[string]any{"name": "zeta group"})
	saveRecord(t, c, "g", map[string]any{"name": "Alpha Group"})

	choices, err := c.Choices(context.Background(), "g")
	if err != nil {
		t.Fatalf("Choices failed: %v", err)
	}
	want := []Choice{
		{ID: "msc:g2", Name: "Alpha Group"},
		{ID: "msc:g1", Name: "zeta group"},
	}
	if !reflect.DeepEqual(choices, want) {
		t.Errorf("Choices = %v, want %v", choices, want)
	}
}

func TestCleanup(t *testing.T) {
	in := map[string]any{
		"title":       "Scheme",
		"empty":       "",
		"nothing":     nil,
		"emptyList":   []any{},
		"mixedList":   []any{"keep", "", map[string]any{"all": ""}},
		"subMap":      map[string]any{"inner": ""},
		"keptMap":     map[string]any{"inner": "x"},
		"zero":        0,
		"falsy":       false,
		snapshotField: `{"maintainers":[]}`,
	}

	got := Cleanup(in)

	want := map[string]any{
		"title":     "Scheme",
		"mixedList": []any{"keep"},
		"keptMap":   map[string]any{"inner": "x"},
		"zero":      0,
		"falsy":     false,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cleanup = %#v, want %#v", got, want)
	}
}

func TestSaveSubmissionReconcilesRelations(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	org := saveRecord(t, c, "g", map[string]any{"name": "DCMI"})
	scheme := saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})

	err := c.SaveSubmission(ctx, scheme, map[string]any{
		"title":       "Dublin Core",
		"maintainers": []string{org.IDString()},
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	// The relation landed in the relation store, not in the document.
	if _, ok := scheme.Data["maintainers"]; ok {
		t.Error("relation field leaked into the record document")
	}
	got, err := c.Relations.Objects(ctx, scheme.IDString(), "maintainer")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"msc:g1"}) {
		t.Errorf("maintainer objects = %v", got)
	}
}

func TestSaveSubmissionNewRecordGetsIDBeforeRelations(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	parent := saveRecord(t, c, "m", map[string]any{"title": "Parent"})

	child, err := c.New("m")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = c.SaveSubmission(ctx, child, map[string]any{
		"title":          "Child",
		"parent_schemes": []string{parent.IDString()},
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}
	if !child.Saved() {
		t.Fatal("record not assigned a number")
	}

	got, err := c.Relations.Objects(ctx, child.IDString(), "parent scheme")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{parent.IDString()}) {
		t.Errorf("parent scheme objects = %v", got)
	}
}

func TestSaveSubmissionInverseField(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	parent := saveRecord(t, c, "m", map[string]any{"title": "Parent"})
	childA := saveRecord(t, c, "m", map[string]any{"title": "Child A"})
	childB := saveRecord(t, c, "m", map[string]any{"title": "Child B"})

	err := c.SaveSubmission(ctx, parent, map[string]any{
		"title":         "Parent",
		"child_schemes": []string{childA.IDString(), childB.IDString()},
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	// Edges live in the children's records with the parent as object.
	for _, child := range []*Record{childA, childB} {
		got, err := c.Relations.Objects(ctx, child.IDString(), "parent scheme")
		if err != nil {
			t.Fatalf("Objects failed: %v", err)
		}
		if !reflect.DeepEqual(got, []string{parent.IDString()}) {
			t.Errorf("parent of %s = %v", child.IDString(), got)
		}
	}
}

func TestSaveSubmissionPreservesVersions(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	versions := []any{map[string]any{"number": "1.0"}}
	r := saveRecord(t, c, "m", map[string]any{"title": "Scheme", "versions": versions})

	if err := c.SaveSubmission(ctx, r, map[string]any{"title": "Scheme v2"}); err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	loaded, err := c.Load(ctx, "m", r.Number)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Data["versions"], versions) {
		t.Errorf("versions = %v, want %v", loaded.Data["versions"], versions)
	}
}

func TestEditStateRoundTrip(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	org := saveRecord(t, c, "g", map[string]any{"name": "DCMI"})
	scheme := saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})

	err := c.SaveSubmission(ctx, scheme, map[string]any{
		"title":       "Dublin Core",
		"maintainers": []string{org.IDString()},
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	data, snapshot, err := c.EditState(ctx, scheme)
	if err != nil {
		t.Fatalf("EditState failed: %v", err)
	}
	if !reflect.DeepEqual(data["maintainers"], []string{"msc:g1"}) {
		t.Errorf("edit state maintainers = %v", data["maintainers"])
	}
	if snapshot == "" {
		t.Error("EditState returned empty snapshot")
	}

	// Round-tripping the snapshot through an unchanged submission must
	// be a no-op on the relation store.
	err = c.SaveSubmission(ctx, scheme, map[string]any{
		"title":       "Dublin Core",
		"maintainers": []string{org.IDString()},
		snapshotField: snapshot,
	})
	if err != nil {
		t.Fatalf("second SaveSubmission failed: %v", err)
	}
	got, err := c.Relations.Objects(ctx, scheme.IDString(), "maintainer")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"msc:g1"}) {
		t.Errorf("maintainer objects = %v", got)
	}
}

func TestRelatedGroupsByField(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	org := saveRecord(t, c, "g", map[string]any{"name": "DCMI"})
	scheme := saveRecord(t, c, "m", map[string]any{"title": "Dublin Core"})
	tool := saveRecord(t, c, "t", map[string]any{"title": "Validator"})

	if err := c.SaveSubmission(ctx, scheme, map[string]any{
		"title":       "Dublin Core",
		"maintainers": []string{org.IDString()},
		"tools":       []string{tool.IDString()},
	}); err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	related, err := c.Related(ctx, scheme)
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	want := map[string][]string{
		"maintainers": {org.IDString()},
		"tools":       {tool.IDString()},
	}
	if !reflect.DeepEqual(related, want) {
		t.Errorf("Related = %v, want %v", related, want)
	}
}

type fakeThesaurus struct{}

func (fakeThesaurus) URIForLabel(label string) string {
	if label == "Science" {
		return "http://vocabularies.test/science"
	}
	return ""
}

func (fakeThesaurus) LabelForURI(uri string) string {
	if uri == "http://vocabularies.test/science" {
		return "Science"
	}
	return ""
}

func TestKeywordsCanonicalized(t *testing.T) {
	c := openTestCatalog(t)
	c.Keywords = fakeThesaurus{}
	ctx := context.Background()

	r := saveRecord(t, c, "m", map[string]any{"title": "Scheme"})
	err := c.SaveSubmission(ctx, r, map[string]any{
		"title":    "Scheme",
		"keywords": []string{"Science", "Not A Term"},
	})
	if err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	if !reflect.DeepEqual(r.Data["keywords"], []string{"http://vocabularies.test/science"}) {
		t.Errorf("stored keywords = %v", r.Data["keywords"])
	}

	data, _, err := c.EditState(ctx, r)
	if err != nil {
		t.Fatalf("EditState failed: %v", err)
	}
	if !reflect.DeepEqual(data["keywords"], []string{"Science"}) {
		t.Errorf("edit-state keywords = %v", data["keywords"])
	}
}
