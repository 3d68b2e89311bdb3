package models

import (
	"slices"
	"strings"
)

// UserSet is a set of platform user IDs
type UserSet map[string]struct{}

func NewUserSet(ids ...string) UserSet {
	set := make(UserSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s UserSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s UserSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Len() int {
	return len(s)
}

func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the IDs in snowflake order (shorter IDs first, then lexicographic)
func (s UserSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// Difference returns the sorted IDs present in s but not in other
func (s UserSet) Difference(other UserSet) []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		if !other.Has(id) {
			ids = append(ids, id)
		}
	}
	SortIDs(ids)
	return ids
}

func (s UserSet) IsSubsetOf(other UserSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// SortIDs orders numeric snowflake strings numerically without parsing them
func SortIDs(ids []string) {
	slices.SortFunc(ids, compareIDs)
}

func compareIDs(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
