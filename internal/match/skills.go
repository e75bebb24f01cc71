package match

import (
	"sort"
	"strings"
)

// Skills is a case-insensitive skill set. The zero value means "skills
// unknown", which makes the scorer return an unscored result. Use NewSkills
// for a known (possibly empty) set.
type Skills struct {
	set   map[string]struct{}
	known bool
}

// NewSkills returns a known skill set. Blank entries are ignored.
func NewSkills(skills ...string) Skills {
	s := Skills{set: make(map[string]struct{}, len(skills)), known: true}
	for _, skill := range skills {
		if key := normalize(skill); key != "" {
			s.set[key] = struct{}{}
		}
	}
	return s
}

// UnknownSkills returns the "no skill data" value.
func UnknownSkills() Skills {
	return Skills{}
}

// Known reports whether skill data is available.
func (s Skills) Known() bool {
	return s.known
}

// Has reports whether the set contains skill, ignoring case and surrounding space.
func (s Skills) Has(skill string) bool {
	_, ok := s.set[normalize(skill)]
	return ok
}

// Len returns the number of distinct skills.
func (s Skills) Len() int {
	return len(s.set)
}

// List returns the skills sorted.
func (s Skills) List() []string {
	out := make([]string, 0, len(s.set))
	for k := range s.set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

// dedupe drops blank and case-duplicate entries, keeping the first spelling
// and the original order.
func dedupe(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		key := normalize(skill)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(skill))
	}
	return out
}
