// Package thesaurus provides the controlled subject vocabulary used to
// canonicalize free-text keywords on catalog records.
//
// The vocabulary is a simplified UNESCO-style thesaurus: a forest of
// domains, each a tree of progressively narrower terms. Terms ship as a
// YAML data file; on first use they are ingested into the vocabulary
// document store (a flat term list plus the domain trees, both in
// canonical order) and afterwards served from there. Keywords are
// stored on records as term URIs and rendered back as labels.
//
// This hierarchy is deliberately separate from the relation graph: term
// lookup and one-branch expansion only, no general traversal.
package thesaurus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mscwg/mscat/internal/docstore"
)

// Document-store collections holding the ingested vocabulary.
const (
	termsCollection = "thesaurus_terms"
	treesCollection = "thesaurus_trees"
)

// ErrNoSource is returned when the vocabulary store is empty and no
// source file is available to ingest.
var ErrNoSource = errors.New("thesaurus: no source file and empty vocabulary store")

// Term is one vocabulary entry in the flat term list.
type Term struct {
	URI   string `json:"uri"`
	Label string `json:"label"`
	// LongLabel is the bread-crumb form, e.g.
	// "Hydrology < Earth sciences < Science".
	LongLabel string `json:"long_label"`
	// Ancestry lists ancestor URIs from the domain downward.
	Ancestry []string `json:"ancestry"`
	// Position fixes the term's place in the canonical listing.
	Position int `json:"position"`
}

// Node is one node of a domain tree.
type Node struct {
	URI      string  `json:"uri" yaml:"uri"`
	Label    string  `json:"label" yaml:"label"`
	Children []*Node `json:"children,omitempty" yaml:"narrower,omitempty"`
}

// source is the YAML shape of the vocabulary data file.
type source struct {
	Domains []*Node `yaml:"domains"`
}

// Thesaurus serves vocabulary lookups from an in-memory copy of the
// ingested term list and domain trees.
type Thesaurus struct {
	db         *docstore.Store
	sourcePath string

	terms       []Term
	trees       []*Node
	byURI       map[string]*Term
	byLabel     map[string]*Term
	byLongLabel map[string]*Term
	childrenOf  map[string][]string
}

// Open returns a Thesaurus over the given vocabulary store. If the
// store has no ingested terms yet, the YAML file at sourcePath is
// parsed and ingested first. An empty sourcePath is allowed when the
// store is already populated.
func Open(ctx context.Context, db *docstore.Store, sourcePath string) (*Thesaurus, error) {
	th := &Thesaurus{db: db, sourcePath: sourcePath}

	n, err := db.Count(ctx, termsCollection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if sourcePath == "" {
			return nil, ErrNoSource
		}
		if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
			return nil, ErrNoSource
		}
		if err := th.ingest(ctx); err != nil {
			return nil, err
		}
	}

	if err := th.load(ctx); err != nil {
		return nil, err
	}
	return th, nil
}

// Reload re-ingests the source file, replacing the stored vocabulary,
// and refreshes the in-memory copy. Used by the serve workflow when
// the source file changes on disk.
func (th *Thesaurus) Reload(ctx context.Context) error {
	if th.sourcePath == "" {
		return ErrNoSource
	}
	if err := th.ingest(ctx); err != nil {
		return err
	}
	return th.load(ctx)
}

// ingest parses the source file and rewrites both vocabulary
// collections in one transaction.
func (th *Thesaurus) ingest(ctx context.Context) error {
	raw, err := os.ReadFile(th.sourcePath)
	if err != nil {
		return fmt.Errorf("thesaurus: failed to read source: %w", err)
	}

	var src source
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return fmt.Errorf("thesaurus: failed to parse %s: %w", th.sourcePath, err)
	}
	if len(src.Domains) == 0 {
		return fmt.Errorf("thesaurus: %s defines no domains", th.sourcePath)
	}

	trees := make([]*Node, len(src.Domains))
	copy(trees, src.Domains)
	sortTrees(trees)

	terms := flatten(trees, nil, "")
	for i := range terms {
		terms[i].Position = i
	}

	tx, err := th.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, coll := range []string{termsCollection, treesCollection} {
		docs, err := tx.All(ctx, coll)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if _, err := tx.Delete(ctx, coll, doc.Key); err != nil {
				return err
			}
		}
	}

	for _, term := range terms {
		body, err := json.Marshal(term)
		if err != nil {
			return fmt.Errorf("thesaurus: failed to encode term %s: %w", term.URI, err)
		}
		if err := tx.Put(ctx, termsCollection, key(term.Position), body); err != nil {
			return err
		}
	}
	for i, tree := range trees {
		body, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("thesaurus: failed to encode domain %s: %w", tree.URI, err)
		}
		if err := tx.Put(ctx, treesCollection, key(i), body); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// load reads the vocabulary collections into memory and rebuilds the
// lookup maps.
func (th *Thesaurus) load(ctx context.Context) error {
	docs, err := th.db.All(ctx, termsCollection)
	if err != nil {
		return err
	}
	terms := make([]Term, 0, len(docs))
	for _, doc := range docs {
		var term Term
		if err := json.Unmarshal(doc.Body, &term); err != nil {
			return fmt.Errorf("thesaurus: malformed term document %s: %w", doc.Key, err)
		}
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Position < terms[j].Position })

	docs, err = th.db.All(ctx, treesCollection)
	if err != nil {
		return err
	}
	type positioned struct {
		pos  int
		node *Node
	}
	ordered := make([]positioned, 0, len(docs))
	for _, doc := range docs {
		var node Node
		if err := json.Unmarshal(doc.Body, &node); err != nil {
			return fmt.Errorf("thesaurus: malformed tree document %s: %w", doc.Key, err)
		}
		pos, err := strconv.Atoi(doc.Key)
		if err != nil {
			return fmt.Errorf("thesaurus: bad tree key %q", doc.Key)
		}
		ordered = append(ordered, positioned{pos: pos, node: &node})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })
	trees := make([]*Node, len(ordered))
	for i, p := range ordered {
		trees[i] = p.node
	}

	th.terms = terms
	th.trees = trees
	th.byURI = make(map[string]*Term, len(terms))
	th.byLabel = make(map[string]*Term, len(terms))
	th.byLongLabel = make(map[string]*Term, len(terms))
	for i := range th.terms {
		t := &th.terms[i]
		th.byURI[t.URI] = t
		th.byLabel[t.Label] = t
		th.byLongLabel[t.LongLabel] = t
	}
	th.childrenOf = make(map[string][]string)
	for _, tree := range th.trees {
		indexChildren(tree, th.childrenOf)
	}
	return nil
}

// Terms returns every vocabulary entry in canonical order.
func (th *Thesaurus) Terms() []Term {
	return th.terms
}

// Choices returns the long labels of every term, in canonical order,
// for populating keyword selection lists.
func (th *Thesaurus) Choices() []string {
	choices := make([]string, len(th.terms))
	for i, t := range th.terms {
		choices[i] = t.LongLabel
	}
	return choices
}

// LabelForURI returns the short label for a term URI, or "" when the
// URI is not in the vocabulary.
func (th *Thesaurus) LabelForURI(uri string) string {
	if t, ok := th.byURI[uri]; ok {
		return t.Label
	}
	return ""
}

// LongLabelForURI returns the bread-crumb label for a term URI.
func (th *Thesaurus) LongLabelForURI(uri string) string {
	if t, ok := th.byURI[uri]; ok {
		return t.LongLabel
	}
	return ""
}

// URIForLabel translates a short or long label into a term URI, or ""
// when the label is not in the vocabulary. Long labels are recognized
// by their bread-crumb separator.
func (th *Thesaurus) URIForLabel(label string) string {
	var t *Term
	var ok bool
	if strings.Contains(label, "<") {
		t, ok = th.byLongLabel[label]
	} else {
		t, ok = th.byLabel[label]
	}
	if !ok {
		return ""
	}
	return t.URI
}

// Branch resolves a term given by label or URI and returns its URI
// together with those of its ancestors (when broader) and descendants
// (when narrower). An unknown term yields an empty list.
func (th *Thesaurus) Branch(term string, broader, narrower bool) []string {
	var base *Term
	var ok bool
	if strings.HasPrefix(term, "http") {
		base, ok = th.byURI[term]
	} else {
		base, ok = th.byLabel[term]
	}
	if !ok {
		return nil
	}

	var uris []string
	if broader {
		uris = append(uris, base.Ancestry...)
	}
	uris = append(uris, base.URI)
	if narrower {
		uris = append(uris, th.descendants(base.URI)...)
	}
	return uris
}

func (th *Thesaurus) descendants(uri string) []string {
	var out []string
	for _, child := range th.childrenOf[uri] {
		out = append(out, child)
		out = append(out, th.descendants(child)...)
	}
	return out
}

// Tree returns the domain trees, optionally filtered to the given term
// URIs. Filtering keeps a node only if its own URI is in the filter;
// kept nodes retain only their kept descendants.
func (th *Thesaurus) Tree(filter []string) []*Node {
	var keep map[string]bool
	if filter != nil {
		keep = make(map[string]bool, len(filter))
		for _, uri := range filter {
			keep[uri] = true
		}
	}
	return filterTrees(th.trees, keep)
}

func filterTrees(nodes []*Node, keep map[string]bool) []*Node {
	var out []*Node
	for _, node := range nodes {
		if keep != nil && !keep[node.URI] {
			continue
		}
		filtered := &Node{URI: node.URI, Label: node.Label}
		filtered.Children = filterTrees(node.Children, keep)
		out = append(out, filtered)
	}
	return out
}

// sortTrees puts domains in URI order and every deeper level in label
// order, the canonical presentation of the vocabulary.
func sortTrees(domains []*Node) {
	sort.Slice(domains, func(i, j int) bool { return domains[i].URI < domains[j].URI })
	for _, domain := range domains {
		sortChildren(domain)
	}
}

func sortChildren(node *Node) {
	sort.Slice(node.Children, func(i, j int) bool {
		return node.Children[i].Label < node.Children[j].Label
	})
	for _, child := range node.Children {
		sortChildren(child)
	}
}

// flatten walks the sorted trees depth-first, producing the canonical
// term list with ancestry and bread-crumb labels.
func flatten(nodes []*Node, ancestry []string, parentLong string) []Term {
	var out []Term
	for _, node := range nodes {
		long := node.Label
		if parentLong != "" {
			long += " < " + parentLong
		}
		out = append(out, Term{
			URI:       node.URI,
			Label:     node.Label,
			LongLabel: long,
			Ancestry:  append([]string(nil), ancestry...),
		})
		out = append(out, flatten(node.Children, append(append([]string(nil), ancestry...), node.URI), long)...)
	}
	return out
}

func indexChildren(node *Node, childrenOf map[string][]string) {
	for _, child := range node.Children {
		childrenOf[node.URI] = append(childrenOf[node.URI], child.URI)
		indexChildren(child, childrenOf)
	}
}

func key(position int) string {
	return fmt.Sprintf("%06d", position)
}
