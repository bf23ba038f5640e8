package visibility

import (
	"sort"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"
)

// Set is a small set of normalized email addresses. The zero value is an
// empty set ready to use with Add.
type Set map[string]struct{}

// NewSet returns a set holding the given emails.
func NewSet(emails ...string) Set {
	s := make(Set, len(emails))
	for _, e := range emails {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was not already present.
func (s *Set) Add(e string) bool {
	e = normalize.Email(e)
	if e == "" {
		return false
	}
	if *s == nil {
		*s = make(Set)
	}
	if _, ok := (*s)[e]; ok {
		return false
	}
	(*s)[e] = struct{}{}
	return true
}

// Remove deletes e and reports whether it was present.
func (s Set) Remove(e string) bool {
	e = normalize.Email(e)
	if _, ok := s[e]; !ok {
		return false
	}
	delete(s, e)
	return true
}

// Contains reports whether e is in the set.
func (s Set) Contains(e string) bool {
	_, ok := s[normalize.Email(e)]
	return ok
}

// Slice returns the members in sorted order. It never returns nil so the
// result encodes as an empty array rather than null.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for e := range s {
		out[e] = struct{}{}
	}
	return out
}
