// Package cdb implements the constant-database lookup-list store:
// immutable key/value tables referenced by name from rule predicates
// (known-bad IP lists, user allowlists and similar enrichment data).
package cdb

import (
	"fmt"
	"sort"
)

// Store holds every loaded lookup list. It is read-only after Build
// and safe to share across sessions without locking.
type Store struct {
	lists map[string]map[string]string
}

// List is one named lookup table as it appears in the ruleset files.
type List struct {
	Name    string            `yaml:"name" validate:"required"`
	Entries map[string]string `yaml:"entries" validate:"required,min=1"`
}

// Build assembles a Store from loaded lists. Duplicate list names are
// a configuration error.
func Build(lists []List) (*Store, error) {
	s := &Store{lists: make(map[string]map[string]string, len(lists))}
	for _, l := range lists {
		if _, dup := s.lists[l.Name]; dup {
			return nil, fmt.Errorf("duplicate lookup list %q", l.Name)
		}
		entries := make(map[string]string, len(l.Entries))
		for k, v := range l.Entries {
			entries[k] = v
		}
		s.lists[l.Name] = entries
	}
	return s, nil
}

// Empty returns a Store with no lists.
func Empty() *Store {
	return &Store{lists: map[string]map[string]string{}}
}

// Lookup returns the value stored for key in the named list.
// ok=false when the list does not exist or the key is absent.
func (s *Store) Lookup(list, key string) (value string, ok bool) {
	entries, ok := s.lists[list]
	if !ok {
		return "", false
	}
	value, ok = entries[key]
	return value, ok
}

// Has reports whether the named list exists.
func (s *Store) Has(list string) bool {
	_, ok := s.lists[list]
	return ok
}

// Names returns the loaded list names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries in the named list, 0 if absent.
func (s *Store) Len(list string) int {
	return len(s.lists[list])
}
