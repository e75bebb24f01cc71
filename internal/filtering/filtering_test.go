package filtering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/query"
)

func pool() *listing.Listings {
	return &listing.Listings{Items: []*listing.Listing{
		{
			ID: "1", Title: "Senior Frontend Engineer", Company: "Acme", Location: "Milan",
			JobType: query.FullTime, WorkArrangement: query.Hybrid, SalaryMin: 40000, SalaryMax: 55000,
			RequiredSkills: []string{"React", "TypeScript"},
		},
		{
			ID: "2", Title: "Frontend Developer", Company: "Globex", Location: "Remote",
			JobType: query.Contract, WorkArrangement: query.Remote,
			RequiredSkills: []string{"JavaScript"}, PreferredSkills: []string{"Figma"},
		},
		{
			ID: "3", Title: "Data Scientist", Company: "Initech", Location: "Rome",
			JobType: query.Internship, WorkArrangement: query.OnSite, SalaryMin: 20000,
			RequiredSkills: []string{"Python", "SQL"},
		},
		{
			ID: "4", Title: "Product Designer", Company: "acme", Location: "Rome, Italy",
			RequiredSkills: []string{"Figma"},
		},
	}}
}

func run(t *testing.T, cfg *Config, c query.Criteria) []string {
	t.Helper()
	got, err := Run(context.Background(), cfg, Deps{Criteria: c}, Default(), pool())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got.IDs()
}

func TestRunCriteriaFilters(t *testing.T) {
	salary := 50000

	tests := []struct {
		name     string
		criteria query.Criteria
		expect   []string
	}{
		{name: "empty criteria keeps everything", criteria: query.Criteria{}, expect: []string{"1", "2", "3", "4"}},
		{name: "role ignores generic words", criteria: query.Criteria{Role: "Frontend Developer"}, expect: []string{"1", "2"}},
		{name: "location substring", criteria: query.Criteria{Location: "Rome"}, expect: []string{"3", "4"}},
		{name: "remote location uses arrangement", criteria: query.Criteria{Location: "Remote"}, expect: []string{"2"}},
		{name: "job type keeps unknown", criteria: query.Criteria{JobType: query.Internship}, expect: []string{"3", "4"}},
		{name: "work arrangement", criteria: query.Criteria{WorkArrangement: query.Hybrid}, expect: []string{"1", "4"}},
		{name: "salary floor keeps unknown", criteria: query.Criteria{SalaryMin: &salary}, expect: []string{"1", "2", "4"}},
		{
			name:     "combined",
			criteria: query.Criteria{Role: "Designer", Location: "Rome", Skills: []string{"figma"}},
			expect:   []string{"4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, &Config{}, tt.criteria); !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestSkillsFilterOnlyWhenRequired(t *testing.T) {
	c := query.Criteria{Skills: []string{"figma"}}

	if got := run(t, &Config{}, c); len(got) != 4 {
		t.Fatalf("expected skills filter to be inactive, got %v", got)
	}

	if got := run(t, &Config{SkillsRequired: true}, c); !reflect.DeepEqual(got, []string{"2", "4"}) {
		t.Fatalf("expected listings asking for figma, got %v", got)
	}
}

func TestCompaniesAndExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	excluded := &listing.Excluded{Items: []*listing.ExcludedListing{{ID: "3"}}}
	if err := excluded.ToFile(path); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	cfg := &Config{ExcludedCompanies: []string{"ACME"}, ExcludeFile: path}
	if got := run(t, cfg, query.Criteria{}); !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("expected only listing 2, got %v", got)
	}
}

func TestExcludeFileBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := Run(context.Background(), &Config{ExcludeFile: path}, Deps{}, Default(), pool())
	if err == nil {
		t.Fatalf("expected error for broken exclude file")
	}
}

type failingFilter struct {
	validateErr error
}

func (f *failingFilter) Name() string           { return "failing" }
func (f *failingFilter) Disable(string)         {}
func (f *failingFilter) IsEnabled() bool        { return true }
func (f *failingFilter) Validate(*Config) error { return f.validateErr }
func (f *failingFilter) Apply(context.Context, Deps, *listing.Listings) (*listing.Listings, Step, error) {
	return nil, Step{}, errors.New("should not be applied")
}

func TestRunValidatesBeforeApplying(t *testing.T) {
	steps := append(Default(), &failingFilter{validateErr: errors.New("bad config")})

	_, err := Run(context.Background(), nil, Deps{}, steps, pool())
	if err == nil || err.Error() != "failing: bad config" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDisableByNameAndDescribe(t *testing.T) {
	steps := Default()
	DisableByName(steps, "location", "user asked for anywhere")

	got, err := Run(context.Background(), &Config{}, Deps{Criteria: query.Criteria{Location: "Turin"}}, steps, pool())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("expected disabled location filter to keep all, got %v", got.IDs())
	}

	statuses := Describe(steps)
	if len(statuses) != len(steps) {
		t.Fatalf("expected %d statuses, got %d", len(steps), len(statuses))
	}
	for _, s := range statuses {
		if s.Name == "location" && (s.Enabled || s.Reason == "") {
			t.Fatalf("expected location to be reported disabled with reason, got %+v", s)
		}
	}
}

func TestRunLogsSteps(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)

	_, err := Run(context.Background(), &Config{}, Deps{Logger: zap.New(core), Criteria: query.Criteria{Location: "Milan"}}, Default(), pool())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found bool
	for _, entry := range observed.FilterMessage("filter step").All() {
		ctx := entry.ContextMap()
		if ctx["name"] == "location" {
			found = true
			if ctx["dropped"] != int64(3) || ctx["left"] != int64(1) {
				t.Fatalf("unexpected location step stats: %v", ctx)
			}
		}
	}
	if !found {
		t.Fatalf("expected location step to be logged")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, &Config{}, Deps{}, Default(), pool()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
