// Package vocabulary holds the lookup tables the query interpreter and the
// filters work from: canonical roles, skills, city aliases, job types and
// work arrangements. A Vocabulary is treated as immutable once built; callers
// that need a variant should Clone it first.
package vocabulary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a vocabulary fails validation.
var ErrInvalid = errors.New("invalid vocabulary")

// Rule maps a set of phrases to a canonical value. Phrases are matched as
// case-insensitive substrings of the query.
type Rule struct {
	Value   string   `yaml:"value" json:"value" mapstructure:"value"`
	Phrases []string `yaml:"phrases" json:"phrases" mapstructure:"phrases"`
}

// Vocabulary is an ordered set of rule tables. Order matters: the conflict
// policy of the interpreter is defined in terms of table order.
type Vocabulary struct {
	Roles            []Rule   `yaml:"roles" json:"roles" mapstructure:"roles"`
	Skills           []string `yaml:"skills" json:"skills" mapstructure:"skills"`
	Locations        []Rule   `yaml:"locations" json:"locations" mapstructure:"locations"`
	JobTypes         []Rule   `yaml:"job-types" json:"jobTypes" mapstructure:"job-types"`
	WorkArrangements []Rule   `yaml:"work-arrangements" json:"workArrangements" mapstructure:"work-arrangements"`
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	return &Vocabulary{
		Roles: []Rule{
			{Value: "Software Engineer", Phrases: []string{"software engineer", "swe"}},
			{Value: "Frontend Developer", Phrases: []string{"frontend", "front-end"}},
			{Value: "Backend Developer", Phrases: []string{"backend", "back-end"}},
			{Value: "Full Stack Developer", Phrases: []string{"full-stack", "fullstack"}},
			{Value: "Data Scientist", Phrases: []string{"data scien"}},
			{Value: "Data Analyst", Phrases: []string{"data analy"}},
			{Value: "Consultant", Phrases: []string{"consult"}},
			{Value: "Designer", Phrases: []string{"designer", "ux", "ui"}},
		},
		Skills: []string{
			"python", "javascript", "react", "node.js", "java", "aws", "sql",
			"machine learning", "typescript", "figma", "analytics", "strategy",
		},
		Locations: []Rule{
			{Value: "Milan", Phrases: []string{"milan", "milano"}},
			{Value: "Rome", Phrases: []string{"rome", "roma"}},
			{Value: "Bologna", Phrases: []string{"bologna"}},
			{Value: "Turin", Phrases: []string{"turin", "torino"}},
			{Value: "Florence", Phrases: []string{"florence", "firenze"}},
			{Value: "Naples", Phrases: []string{"naples", "napoli"}},
			{Value: "Remote", Phrases: []string{"remote", "remoto"}},
		},
		JobTypes: []Rule{
			{Value: "INTERNSHIP", Phrases: []string{"internship", "intern", "stage"}},
			{Value: "FULL_TIME", Phrases: []string{"full-time", "full time", "tempo pieno"}},
			{Value: "PART_TIME", Phrases: []string{"part-time", "part time"}},
			{Value: "CONTRACT", Phrases: []string{"contract", "contratto"}},
			{Value: "TEMPORARY", Phrases: []string{"temporary", "temporaneo"}},
			{Value: "FREELANCE", Phrases: []string{"freelance"}},
		},
		WorkArrangements: []Rule{
			{Value: "HYBRID", Phrases: []string{"hybrid", "ibrido"}},
			{Value: "REMOTE", Phrases: []string{"remote", "remoto"}},
			{Value: "ON_SITE", Phrases: []string{"office", "ufficio", "in presenza"}},
		},
	}
}

// Clone returns a deep copy.
func (v *Vocabulary) Clone() *Vocabulary {
	if v == nil {
		return nil
	}

	return &Vocabulary{
		Roles:            cloneRules(v.Roles),
		Skills:           append([]string(nil), v.Skills...),
		Locations:        cloneRules(v.Locations),
		JobTypes:         cloneRules(v.JobTypes),
		WorkArrangements: cloneRules(v.WorkArrangements),
	}
}

// Validate checks that every rule has a value and at least one non-blank
// phrase and that skills are not blank.
func (v *Vocabulary) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: vocabulary is nil", ErrInvalid)
	}

	tables := []struct {
		name  string
		rules []Rule
	}{
		{"roles", v.Roles},
		{"locations", v.Locations},
		{"job-types", v.JobTypes},
		{"work-arrangements", v.WorkArrangements},
	}

	for _, table := range tables {
		for i, rule := range table.rules {
			if strings.TrimSpace(rule.Value) == "" {
				return fmt.Errorf("%w: %s[%d] has empty value", ErrInvalid, table.name, i)
			}
			if len(nonBlank(rule.Phrases)) == 0 {
				return fmt.Errorf("%w: %s[%d] (%s) has no phrases", ErrInvalid, table.name, i, rule.Value)
			}
		}
	}

	for i, skill := range v.Skills {
		if strings.TrimSpace(skill) == "" {
			return fmt.Errorf("%w: skills[%d] is empty", ErrInvalid, i)
		}
	}

	return nil
}

// Merge returns a copy of base where every non-empty table of override
// replaces the corresponding table.
func Merge(base, override *Vocabulary) *Vocabulary {
	out := base.Clone()
	if out == nil {
		out = &Vocabulary{}
	}
	if override == nil {
		return out
	}

	if len(override.Roles) > 0 {
		out.Roles = cloneRules(override.Roles)
	}
	if len(override.Skills) > 0 {
		out.Skills = append([]string(nil), override.Skills...)
	}
	if len(override.Locations) > 0 {
		out.Locations = cloneRules(override.Locations)
	}
	if len(override.JobTypes) > 0 {
		out.JobTypes = cloneRules(override.JobTypes)
	}
	if len(override.WorkArrangements) > 0 {
		out.WorkArrangements = cloneRules(override.WorkArrangements)
	}

	return out
}

func cloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}

	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Value: r.Value, Phrases: append([]string(nil), r.Phrases...)}
	}
	return out
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
