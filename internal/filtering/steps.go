package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/query"
)

// genericRoleWords do not narrow a title match on their own.
var genericRoleWords = map[string]bool{
	"developer": true,
	"engineer":  true,
}

// criteriaFilter is a step driven by one criteria field. predicate returns
// nil when the field is unset, which makes the step a no-op.
type criteriaFilter struct {
	name      string
	disabled  bool
	reason    string
	predicate func(c query.Criteria) func(*listing.Listing) bool
}

func (f *criteriaFilter) Name() string { return f.name }

func (f *criteriaFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *criteriaFilter) IsEnabled() bool { return !f.disabled }

func (f *criteriaFilter) Validate(*Config) error { return nil }

func (f *criteriaFilter) Apply(_ context.Context, deps Deps, l *listing.Listings) (*listing.Listings, Step, error) {
	initial := l.Len()

	keep := f.predicate(deps.Criteria)
	if keep == nil {
		return l, Step{Initial: initial, Left: initial}, nil
	}

	excluded := l.Keep(keep)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding listings not matching criteria",
			zap.String("filter", f.name),
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}

func (f *criteriaFilter) Status() Status {
	return Status{Name: f.name, Enabled: !f.disabled, Reason: f.reason}
}

// NewRole keeps listings whose title mentions the role. "Frontend Developer"
// matches a "Senior Frontend Engineer" title since generic words are ignored.
func NewRole() Filter {
	return &criteriaFilter{name: "role", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if c.Role == "" {
			return nil
		}
		role := strings.ToLower(c.Role)
		words := significantWords(role)
		return func(l *listing.Listing) bool {
			title := strings.ToLower(l.Title)
			if strings.Contains(title, role) {
				return true
			}
			if len(words) == 0 {
				return false
			}
			for _, w := range words {
				if !strings.Contains(title, w) {
					return false
				}
			}
			return true
		}
	}}
}

// NewLocation keeps listings in the requested city. "Remote" also keeps
// listings with a remote work arrangement.
func NewLocation() Filter {
	return &criteriaFilter{name: "location", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if c.Location == "" {
			return nil
		}
		remote := strings.EqualFold(c.Location, "remote")
		want := strings.ToLower(c.Location)
		return func(l *listing.Listing) bool {
			if remote && l.WorkArrangement == query.Remote {
				return true
			}
			return strings.Contains(strings.ToLower(l.Location), want)
		}
	}}
}

// NewJobType keeps listings of the requested job type. Listings without a job
// type are kept.
func NewJobType() Filter {
	return &criteriaFilter{name: "job_type", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if c.JobType == "" {
			return nil
		}
		return func(l *listing.Listing) bool {
			return l.JobType == "" || l.JobType == c.JobType
		}
	}}
}

// NewWorkArrangement keeps listings with the requested arrangement. Listings
// without one are kept.
func NewWorkArrangement() Filter {
	return &criteriaFilter{name: "work_arrangement", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if c.WorkArrangement == "" {
			return nil
		}
		return func(l *listing.Listing) bool {
			return l.WorkArrangement == "" || l.WorkArrangement == c.WorkArrangement
		}
	}}
}

// NewSalary keeps listings whose salary range reaches the floor. Listings
// without salary data are kept.
func NewSalary() Filter {
	return &criteriaFilter{name: "salary", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if c.SalaryMin == nil {
			return nil
		}
		floor := *c.SalaryMin
		return func(l *listing.Listing) bool {
			top := max(l.SalaryMax, l.SalaryMin)
			return top == 0 || top >= floor
		}
	}}
}

type skillsFilter struct {
	criteriaFilter
	required bool
}

// NewSkills keeps listings asking for at least one of the criteria skills.
// It only drops listings when the config sets skills-required.
func NewSkills() Filter {
	f := &skillsFilter{}
	f.criteriaFilter = criteriaFilter{name: "skills", predicate: func(c query.Criteria) func(*listing.Listing) bool {
		if !f.required || len(c.Skills) == 0 {
			return nil
		}
		return func(l *listing.Listing) bool {
			for _, s := range append(append([]string(nil), l.RequiredSkills...), l.PreferredSkills...) {
				if c.HasSkill(s) {
					return true
				}
			}
			return false
		}
	}}
	return f
}

func (f *skillsFilter) Validate(cfg *Config) error {
	f.required = cfg != nil && cfg.SkillsRequired
	return nil
}

func (f *skillsFilter) Status() Status {
	s := f.criteriaFilter.Status()
	s.Details = map[string]string{"skills_required": strconv.FormatBool(f.required)}
	return s
}

type companiesFilter struct {
	companies []string
}

// NewCompanies creates a filter that removes listings by companies configured in the config.
func NewCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return "companies" }

func (f *companiesFilter) Disable(string) {}

func (f *companiesFilter) IsEnabled() bool { return true }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg != nil {
		f.companies = append(f.companies, cfg.ExcludedCompanies...)
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, l *listing.Listings) (*listing.Listings, Step, error) {
	initial := l.Len()
	if len(f.companies) == 0 {
		return l, Step{Initial: initial, Left: initial}, nil
	}

	excluded := l.ExcludeCompanies(f.companies)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding listings by companies",
			zap.Strings("excluded_companies", f.companies),
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes listings contained in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, l *listing.Listings) (*listing.Listings, Step, error) {
	initial := l.Len()
	if f.path == "" {
		return l, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := listing.LoadExcluded(f.path)
	if err != nil {
		return l, Step{}, fmt.Errorf("getting excluded listings from file: %w", err)
	}

	removed := l.ExcludeIDs(excluded.IDs())
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Debug("excluding listings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_listings", removed),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(removed), Left: l.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

func significantWords(role string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(role, func(r rune) bool { return r == ' ' || r == '-' }) {
		if len(w) >= 3 && !genericRoleWords[w] {
			words = append(words, w)
		}
	}
	return words
}
