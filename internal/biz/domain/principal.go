package domain

import "sort"

// PrincipalSet is an immutable set of chat or user identifiers.
// The zero value is the empty (unrestricted) set.
type PrincipalSet struct {
	ids map[string]struct{}
}

// NewPrincipalSet builds a set from named principal groups
func NewPrincipalSet(groups ...[]string) PrincipalSet {
	ids := make(map[string]struct{})
	for _, g := range groups {
		for _, id := range g {
			if id == "" {
				continue
			}
			ids[id] = struct{}{}
		}
	}
	return PrincipalSet{ids: ids}
}

// Empty reports whether the set places no restriction
func (s PrincipalSet) Empty() bool {
	return len(s.ids) == 0
}

// Contains reports whether id is a member
func (s PrincipalSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Admits reports whether a message from chatID/userID passes the allow-list
func (s PrincipalSet) Admits(chatID, userID string) bool {
	if s.Empty() {
		return true
	}
	return s.Contains(chatID) || s.Contains(userID)
}

// IDs returns the members in sorted order
func (s PrincipalSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Principals holds the named groups command allow-lists are resolved from
type Principals struct {
	Admins   []string
	GoldChat string
}

// AdminsSet returns the privileged principals
func (p Principals) AdminsSet() PrincipalSet {
	return NewPrincipalSet(p.Admins)
}

// AdminsAndGoldChat returns the admins plus the designated chat
func (p Principals) AdminsAndGoldChat() PrincipalSet {
	return NewPrincipalSet(p.Admins, []string{p.GoldChat})
}
