package query

import (
	"fmt"
	"strings"
)

// JobType is the contract kind of a listing.
type JobType string

const (
	FullTime   JobType = "FULL_TIME"
	PartTime   JobType = "PART_TIME"
	Contract   JobType = "CONTRACT"
	Internship JobType = "INTERNSHIP"
	Temporary  JobType = "TEMPORARY"
	Freelance  JobType = "FREELANCE"
)

var jobTypeLabels = map[JobType]string{
	FullTime:   "full-time",
	PartTime:   "part-time",
	Contract:   "contract",
	Internship: "internship",
	Temporary:  "temporary",
	Freelance:  "freelance",
}

// ParseJobType accepts the enum name in any case. An empty string is valid
// and means "no job type".
func ParseJobType(s string) (JobType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	jt := JobType(s)
	if _, ok := jobTypeLabels[jt]; !ok {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return jt, nil
}

// Label returns a human readable label.
func (j JobType) Label() string {
	return jobTypeLabels[j]
}

// WorkArrangement describes where the work is performed.
type WorkArrangement string

const (
	Remote WorkArrangement = "REMOTE"
	Hybrid WorkArrangement = "HYBRID"
	OnSite WorkArrangement = "ON_SITE"
)

var workArrangementLabels = map[WorkArrangement]string{
	Remote: "remote",
	Hybrid: "hybrid",
	OnSite: "on-site",
}

// ParseWorkArrangement accepts the enum name in any case. An empty string is
// valid and means "no preference".
func ParseWorkArrangement(s string) (WorkArrangement, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	wa := WorkArrangement(s)
	if _, ok := workArrangementLabels[wa]; !ok {
		return "", fmt.Errorf("unknown work arrangement %q", s)
	}
	return wa, nil
}

// Label returns a human readable label.
func (w WorkArrangement) Label() string {
	return workArrangementLabels[w]
}

// Criteria is the structured form of a free-text search. Empty fields mean
// "no filter".
type Criteria struct {
	Role            string          `json:"role,omitempty"`
	Skills          []string        `json:"skills"`
	Location        string          `json:"location,omitempty"`
	JobType         JobType         `json:"jobType,omitempty"`
	WorkArrangement WorkArrangement `json:"workArrangement,omitempty"`
	SalaryMin       *int            `json:"salaryMin,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c Criteria) IsEmpty() bool {
	return c.Role == "" &&
		len(c.Skills) == 0 &&
		c.Location == "" &&
		c.JobType == "" &&
		c.WorkArrangement == "" &&
		c.SalaryMin == nil
}

// HasSkill reports whether the lower-cased skill is part of the criteria.
func (c Criteria) HasSkill(skill string) bool {
	skill = strings.ToLower(strings.TrimSpace(skill))
	for _, s := range c.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Merge returns c with every non-empty field of override applied on top.
// Skills from both sides are combined.
func (c Criteria) Merge(override Criteria) Criteria {
	out := c
	out.Skills = mergeSkills(c.Skills, override.Skills)

	if override.Role != "" {
		out.Role = override.Role
	}
	if override.Location != "" {
		out.Location = override.Location
	}
	if override.JobType != "" {
		out.JobType = override.JobType
	}
	if override.WorkArrangement != "" {
		out.WorkArrangement = override.WorkArrangement
	}
	if override.SalaryMin != nil {
		v := *override.SalaryMin
		out.SalaryMin = &v
	}

	return out
}

// Describe renders the criteria as a short sentence for chat replies and logs.
func (c Criteria) Describe() string {
	if c.IsEmpty() {
		return "No specific criteria, showing all listings"
	}

	var b strings.Builder
	b.WriteString("Looking for ")
	if c.Role != "" {
		b.WriteString(c.Role)
		b.WriteString(" roles")
	} else {
		b.WriteString("roles")
	}

	if c.JobType != "" {
		b.WriteString(", ")
		b.WriteString(c.JobType.Label())
	}
	if c.Location != "" {
		b.WriteString(", in ")
		b.WriteString(c.Location)
	}
	if c.WorkArrangement != "" {
		b.WriteString(", ")
		b.WriteString(c.WorkArrangement.Label())
		b.WriteString(" work")
	}
	if len(c.Skills) > 0 {
		b.WriteString(", skills: ")
		b.WriteString(strings.Join(c.Skills, ", "))
	}
	if c.SalaryMin != nil {
		fmt.Fprintf(&b, ", from %d", *c.SalaryMin)
	}

	return b.String()
}

func mergeSkills(a, b []string) []string {
	set := newSkillSet()
	for _, s := range a {
		set.add(s)
	}
	for _, s := range b {
		set.add(strings.ToLower(strings.TrimSpace(s)))
	}
	return set.sorted()
}
