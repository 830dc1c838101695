// Package identifier implements MSC IDs, the canonical identifiers for
// catalog entities.
//
// An MSC ID has the form:
//
//	msc:<series><number>[#v<version>]
//
// where series names the entity's collection (e.g. "m" for metadata
// schemes, "g" for organizations), number is the entity's sequence number
// within that collection, and the optional version suffix pins a specific
// version of the entity. The string form is the wire contract: every
// consumer parses and produces exactly this grammar.
package identifier

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Prefix is the scheme portion shared by every MSC ID.
const Prefix = "msc:"

// seqWidth is the zero-padded width of the numeric portion of a sort key.
// The total order is only defined for sequence numbers below 10^5; a
// wider number compares byte-wise against the padded keys, so m100000
// sorts before m99999.
const seqWidth = 5

var idPattern = regexp.MustCompile(`^msc:([a-z_]+?)([1-9][0-9]*)(?:#v(.*))?$`)

// MSCID identifies a single catalog entity.
type MSCID struct {
	// Series is the collection code, e.g. "m", "g", "t", "c", "e",
	// "datatype".
	Series string
	// Number is the entity's sequence number, assigned by the entity
	// store and never reused. Always positive for a stored entity.
	Number int
	// Version is an optional opaque version suffix.
	Version string
}

// Parse parses s as an MSC ID. The error is deliberately unexported
// detail: callers treat a failed parse as "no such entity" rather than a
// fault (see Record.LoadByID).
func Parse(s string) (MSCID, error) {
	m := idPattern.FindStringSubmatch(s)
	if m == nil {
		return MSCID{}, fmt.Errorf("invalid MSC ID: %q", s)
	}
	number, err := strconv.Atoi(m[2])
	if err != nil {
		return MSCID{}, fmt.Errorf("invalid MSC ID number in %q: %w", s, err)
	}
	return MSCID{Series: m[1], Number: number, Version: m[3]}, nil
}

// IsValid reports whether s parses as an MSC ID.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the canonical string form. Two IDs are equal iff their
// string forms are equal.
func (id MSCID) String() string {
	s := Prefix + id.Series + strconv.Itoa(id.Number)
	if id.Version != "" {
		s += "#v" + id.Version
	}
	return s
}

// SortKey returns a string that sorts IDs first by series, then
// numerically by sequence number. The numeric portion is left-padded with
// zeros so that msc:m2 sorts before msc:m10 despite the string
// representation.
func (id MSCID) SortKey() string {
	num := strconv.Itoa(id.Number)
	if pad := seqWidth - len(num); pad > 0 {
		num = strings.Repeat("0", pad) + num
	}
	key := Prefix + id.Series + num
	if id.Version != "" {
		key += "#v" + id.Version
	}
	return key
}

// SortKeyString maps an ID in string form to its sort key. Strings that
// do not parse as MSC IDs are returned unchanged so they still sort
// deterministically among themselves.
func SortKeyString(s string) string {
	id, err := Parse(s)
	if err != nil {
		return s
	}
	return id.SortKey()
}

// Compare orders two ID strings by their sort keys. It returns a negative
// number, zero, or a positive number as a sorts before, equal to, or
// after b.
func Compare(a, b string) int {
	return strings.Compare(SortKeyString(a), SortKeyString(b))
}

// SortStrings sorts a slice of ID strings in place into canonical order.
// The relation store applies this same ordering to stored edge lists and
// to every query result.
func SortStrings(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return Compare(ids[i], ids[j]) < 0
	})
}
