package radar

import (
	"sort"
	"strings"
)

// ParseTechs splits a comma separated techs string, trims each entry and drops empties and
// case-insensitive duplicates. The first spelling of each tech is kept, in input order.
func ParseTechs(raw string) []string {
	return NormalizeTechs(strings.Split(raw, ","))
}

// NormalizeTechs trims, drops empties and removes case-insensitive duplicates.
func NormalizeTechs(techs []string) []string {
	out := make([]string, 0, len(techs))
	seen := make(map[string]struct{}, len(techs))
	for _, t := range techs {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := TagKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// TagKey is the comparison form of a tag.
func TagKey(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// TagKeys returns the comparison forms of techs, de-duplicated and sorted.
func TagKeys(techs []string) []string {
	set := NewTagSet(techs)
	return set.Keys()
}

// TagSet is an immutable set of tag keys. The zero value is the empty set, which matches any
// record.
type TagSet struct {
	keys map[string]struct{}
}

// NewTagSet builds a set from display tags.
func NewTagSet(tags []string) TagSet {
	if len(tags) == 0 {
		return TagSet{}
	}
	keys := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if k := TagKey(t); k != "" {
			keys[k] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return TagSet{}
	}
	return TagSet{keys: keys}
}

// Empty reports whether the set has no tags.
func (s TagSet) Empty() bool {
	return len(s.keys) == 0
}

// Len returns the number of distinct tags.
func (s TagSet) Len() int {
	return len(s.keys)
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s.keys[TagKey(tag)]
	return ok
}

// Accepts implements the OR filter: an empty set accepts everything, otherwise at least one of
// techs must be in the set.
func (s TagSet) Accepts(techs []string) bool {
	if s.Empty() {
		return true
	}
	for _, t := range techs {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Keys returns the tag keys in sorted order.
func (s TagSet) Keys() []string {
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets hold the same keys.
func (s TagSet) Equal(other TagSet) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for k := range s.keys {
		if _, ok := other.keys[k]; !ok {
			return false
		}
	}
	return true
}

func (s TagSet) String() string {
	return strings.Join(s.Keys(), ",")
}
