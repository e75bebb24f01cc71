// Package match scores listings against a skill set and ranks the results.
package match

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Band groups scores for display.
type Band string

const (
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
	BandUnscored Band = "unscored"
)

// Requirements is the listing side of a match.
type Requirements struct {
	Required    []string
	Preferred   []string
	Disciplines []string
}

// Candidate is the other party of a match.
type Candidate struct {
	Skills     Skills
	Discipline string
}

// Result is the outcome of scoring one listing. Score is nil when the
// candidate skills were unknown.
type Result struct {
	Score            *int     `json:"score"`
	Scored           bool     `json:"scored"`
	MatchedRequired  []string `json:"matchedRequired"`
	MissingRequired  []string `json:"missingRequired"`
	MatchedPreferred []string `json:"matchedPreferred"`
	DisciplineMatch  *bool    `json:"disciplineMatch,omitempty"`
	Band             Band     `json:"band"`
}

// Value returns the score, or -1 for unscored results.
func (r Result) Value() int {
	if r.Score == nil {
		return -1
	}
	return *r.Score
}

// Config holds the scoring weights and band thresholds.
type Config struct {
	RequiredWeight  float64 `mapstructure:"required-weight"`
	PreferredWeight float64 `mapstructure:"preferred-weight"`
	HighMatch       int     `mapstructure:"high-match"`
	MediumMatch     int     `mapstructure:"medium-match"`
}

// DefaultConfig weighs required skills at 80% and preferred at 20%.
func DefaultConfig() Config {
	return Config{
		RequiredWeight:  0.8,
		PreferredWeight: 0.2,
		HighMatch:       70,
		MediumMatch:     40,
	}
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	required  float64
	preferred float64
	high      int
	medium    int
}

// NewScorer validates cfg and normalises the weights so that they sum to 1.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.RequiredWeight < 0 || cfg.PreferredWeight < 0 {
		return nil, errors.New("scoring weights must not be negative")
	}

	total := cfg.RequiredWeight + cfg.PreferredWeight
	if total == 0 {
		return nil, errors.New("at least one scoring weight must be positive")
	}

	if cfg.HighMatch < 0 || cfg.HighMatch > 100 || cfg.MediumMatch < 0 || cfg.MediumMatch > cfg.HighMatch {
		return nil, fmt.Errorf("invalid band thresholds: medium %d, high %d", cfg.MediumMatch, cfg.HighMatch)
	}

	return &Scorer{
		required:  cfg.RequiredWeight / total,
		preferred: cfg.PreferredWeight / total,
		high:      cfg.HighMatch,
		medium:    cfg.MediumMatch,
	}, nil
}

// MustDefault returns a scorer with DefaultConfig.
func MustDefault() *Scorer {
	s, err := NewScorer(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// HighMatch returns the threshold of the high band.
func (s *Scorer) HighMatch() int {
	return s.high
}

// Score matches req against c. An empty skill list counts as full coverage
// for its term, so two empty lists score 100 and the score is 0 only when
// both lists are non-empty and nothing overlaps.
func (s *Scorer) Score(req Requirements, c Candidate) Result {
	required := dedupe(req.Required)
	preferred := dedupe(req.Preferred)

	res := Result{
		MatchedRequired:  []string{},
		MissingRequired:  []string{},
		MatchedPreferred: []string{},
		DisciplineMatch:  disciplineMatch(req.Disciplines, c.Discipline),
	}

	if !c.Skills.Known() {
		res.MissingRequired = append(res.MissingRequired, required...)
		res.Band = BandUnscored
		return res
	}

	for _, skill := range required {
		if c.Skills.Has(skill) {
			res.MatchedRequired = append(res.MatchedRequired, skill)
		} else {
			res.MissingRequired = append(res.MissingRequired, skill)
		}
	}
	for _, skill := range preferred {
		if c.Skills.Has(skill) {
			res.MatchedPreferred = append(res.MatchedPreferred, skill)
		}
	}

	raw := 100 * (s.required*coverage(len(res.MatchedRequired), len(required)) +
		s.preferred*coverage(len(res.MatchedPreferred), len(preferred)))
	score := clamp(int(math.Round(raw)), 0, 100)

	res.Score = &score
	res.Scored = true
	res.Band = s.band(score)

	return res
}

// ScoreSkills is a shorthand for scoring plain skill lists.
func (s *Scorer) ScoreSkills(required, preferred []string, candidate Skills) Result {
	return s.Score(Requirements{Required: required, Preferred: preferred}, Candidate{Skills: candidate})
}

func (s *Scorer) band(score int) Band {
	switch {
	case score >= s.high:
		return BandHigh
	case score >= s.medium:
		return BandMedium
	default:
		return BandLow
	}
}

func coverage(matched, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(matched) / float64(total)
}

func disciplineMatch(disciplines []string, discipline string) *bool {
	discipline = normalize(discipline)
	if discipline == "" || len(dedupe(disciplines)) == 0 {
		return nil
	}

	found := false
	for _, d := range disciplines {
		if strings.EqualFold(strings.TrimSpace(d), discipline) {
			found = true
			break
		}
	}
	return &found
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
