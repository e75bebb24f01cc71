// Package listing holds the job listing model and the sources listings are
// fetched from: the listing API and local JSON files.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/query"
)

// Source provides the listing pool for a search.
type Source interface {
	Listings(ctx context.Context, criteria query.Criteria) (*Listings, error)
}

// Listing is a job posting as returned by the listing API.
type Listing struct {
	ID              string                `json:"id" mapstructure:"id"`
	Title           string                `json:"title" mapstructure:"title"`
	Company         string                `json:"company,omitempty" mapstructure:"company"`
	Location        string                `json:"location,omitempty" mapstructure:"location"`
	JobType         query.JobType         `json:"jobType,omitempty" mapstructure:"jobType"`
	WorkArrangement query.WorkArrangement `json:"workArrangement,omitempty" mapstructure:"workArrangement"`
	SalaryMin       int                   `json:"salaryMin,omitempty" mapstructure:"salaryMin"`
	SalaryMax       int                   `json:"salaryMax,omitempty" mapstructure:"salaryMax"`
	RequiredSkills  []string              `json:"requiredSkills" mapstructure:"requiredSkills"`
	PreferredSkills []string              `json:"preferredSkills" mapstructure:"preferredSkills"`
	Disciplines     []string              `json:"disciplines,omitempty" mapstructure:"disciplines"`
	Applied         bool                  `json:"applied,omitempty" mapstructure:"applied"`
	URL             string                `json:"url,omitempty" mapstructure:"url"`
}

// Requirements returns the scoring input for the listing.
func (l *Listing) Requirements() match.Requirements {
	return match.Requirements{
		Required:    l.RequiredSkills,
		Preferred:   l.PreferredSkills,
		Disciplines: l.Disciplines,
	}
}

// Listings is an ordered listing collection.
type Listings struct {
	Items []*Listing `json:"items"`
}

func (l *Listings) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

func (l *Listings) FindByID(id string) *Listing {
	for _, item := range l.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (l *Listings) IDs() []string {
	ids := make([]string, 0, len(l.Items))
	for _, item := range l.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ExcludeIDs removes listings with the given ids, keeping the order of the
// rest, and returns the removed ids.
func (l *Listings) ExcludeIDs(ids []string) []string {
	set := toSet(ids, false)
	return l.excludeFunc(func(item *Listing) bool { return set[item.ID] })
}

// ExcludeCompanies removes listings whose company matches one of names,
// ignoring case, and returns the removed ids.
func (l *Listings) ExcludeCompanies(names []string) []string {
	set := toSet(names, true)
	return l.excludeFunc(func(item *Listing) bool {
		return set[strings.ToLower(strings.TrimSpace(item.Company))]
	})
}

// Keep retains only the listings for which keep returns true and returns the
// removed ids.
func (l *Listings) Keep(keep func(*Listing) bool) []string {
	return l.excludeFunc(func(item *Listing) bool { return !keep(item) })
}

func (l *Listings) excludeFunc(drop func(*Listing) bool) []string {
	var excluded []string
	l.Items = slices.DeleteFunc(l.Items, func(item *Listing) bool {
		if drop(item) {
			excluded = append(excluded, item.ID)
			return true
		}
		return false
	})
	return excluded
}

// ReportByCompany groups a short description of every listing by company.
func (l *Listings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, item := range l.Items {
		key := item.Company
		if key == "" {
			key = "unknown"
		}
		report[key] = append(report[key], map[string]string{
			"id":       item.ID,
			"title":    item.Title,
			"location": item.Location,
			"url":      item.URL,
			"salary":   fmt.Sprintf("%d-%d", item.SalaryMin, item.SalaryMax),
			"required": strings.Join(item.RequiredSkills, ", "),
		})
	}
	return report
}

// DumpToTmpFile writes the listings as indented JSON to a temp file and
// returns its name.
func (l *Listings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "listings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func toSet(values []string, fold bool) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v != "" {
			set[v] = true
		}
	}
	return set
}
