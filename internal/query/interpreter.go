// Package query turns free-text job searches into structured Criteria using
// case-insensitive substring rules over a vocabulary.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spigell/career-match/internal/vocabulary"
)

// Policy decides which rule wins when several rules of one table match.
type Policy string

const (
	// PolicyLast picks the last matching rule in table order. This is the
	// default and mirrors the behaviour of sequential overwriting.
	PolicyLast Policy = "last"
	// PolicyFirst picks the first matching rule in table order.
	PolicyFirst Policy = "first"
	// PolicyLongest picks the rule whose matched phrase is the longest.
	// Ties go to the earlier rule.
	PolicyLongest Policy = "longest"
)

// ParsePolicy parses a policy name. Empty means PolicyLast.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyLast, nil
	case PolicyLast, PolicyFirst, PolicyLongest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown interpreter policy %q", s)
	}
}

var salaryPattern = regexp.MustCompile(`€?\s*(\d+)\s*k\b`)

type rule struct {
	value   string
	phrases []string
}

// Interpreter is safe for concurrent use; it holds no mutable state.
type Interpreter struct {
	policy       Policy
	roles        []rule
	locations    []rule
	jobTypes     []rule
	arrangements []rule
	skills       []skillPhrase
}

type skillPhrase struct {
	key    string
	phrase string
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithPolicy sets the conflict policy.
func WithPolicy(p Policy) Option {
	return func(i *Interpreter) {
		if p != "" {
			i.policy = p
		}
	}
}

// New compiles the vocabulary into an Interpreter. Job type and work
// arrangement values must be known enum members.
func New(v *vocabulary.Vocabulary, opts ...Option) (*Interpreter, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	i := &Interpreter{policy: PolicyLast}
	for _, opt := range opts {
		opt(i)
	}

	if _, err := ParsePolicy(string(i.policy)); err != nil {
		return nil, err
	}

	for _, r := range v.JobTypes {
		if _, err := ParseJobType(r.Value); err != nil {
			return nil, fmt.Errorf("%w: job-types: %v", vocabulary.ErrInvalid, err)
		}
	}
	for _, r := range v.WorkArrangements {
		if _, err := ParseWorkArrangement(r.Value); err != nil {
			return nil, fmt.Errorf("%w: work-arrangements: %v", vocabulary.ErrInvalid, err)
		}
	}

	i.roles = compileRules(v.Roles, false)
	i.locations = compileRules(v.Locations, false)
	i.jobTypes = compileRules(v.JobTypes, true)
	i.arrangements = compileRules(v.WorkArrangements, true)

	seen := make(map[string]bool, len(v.Skills))
	for _, s := range v.Skills {
		key := strings.ToLower(strings.TrimSpace(s))
		if seen[key] {
			continue
		}
		seen[key] = true
		i.skills = append(i.skills, skillPhrase{key: key, phrase: normalize(key)})
	}

	return i, nil
}

// MustDefault returns an interpreter over the built-in vocabulary.
func MustDefault() *Interpreter {
	i, err := New(vocabulary.Default())
	if err != nil {
		panic(err)
	}
	return i
}

// Policy returns the configured conflict policy.
func (i *Interpreter) Policy() Policy {
	return i.policy
}

// Interpret maps a free-text query to Criteria. It never fails: text with no
// recognised signal yields empty criteria.
func (i *Interpreter) Interpret(q string) Criteria {
	text := normalize(q)

	c := Criteria{Skills: []string{}}
	if strings.TrimSpace(text) == "" {
		return c
	}

	c.Role = i.resolve(i.roles, text)

	set := newSkillSet()
	for _, s := range i.skills {
		if strings.Contains(text, s.phrase) {
			set.add(s.key)
		}
	}
	c.Skills = set.sorted()

	c.Location = i.resolve(i.locations, text)
	c.JobType = JobType(i.resolve(i.jobTypes, text))
	c.WorkArrangement = WorkArrangement(i.resolve(i.arrangements, text))
	c.SalaryMin = parseSalary(text)

	return c
}

func (i *Interpreter) resolve(rules []rule, text string) string {
	winner := ""
	best := 0

	for _, r := range rules {
		length := longestMatch(r.phrases, text)
		if length == 0 {
			continue
		}

		switch i.policy {
		case PolicyFirst:
			return r.value
		case PolicyLongest:
			if length > best {
				best = length
				winner = r.value
			}
		default:
			winner = r.value
		}
	}

	return winner
}

func longestMatch(phrases []string, text string) int {
	longest := 0
	for _, p := range phrases {
		if strings.Contains(text, p) && len(p) > longest {
			longest = len(p)
		}
	}
	return longest
}

func parseSalary(text string) *int {
	m := salaryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n > (1<<31-1)/1000 {
		return nil
	}

	v := n * 1000
	return &v
}

func compileRules(rules []vocabulary.Rule, upper bool) []rule {
	out := make([]rule, 0, len(rules))
	for _, r := range rules {
		value := strings.TrimSpace(r.Value)
		if upper {
			value = strings.ToUpper(value)
		}

		compiled := rule{value: value}
		for _, p := range r.Phrases {
			if p = normalize(strings.TrimSpace(p)); p != "" {
				compiled.phrases = append(compiled.phrases, p)
			}
		}
		out = append(out, compiled)
	}
	return out
}

// normalize lower-cases s and strips combining marks, so "Città" and "citta"
// compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

type skillSet map[string]struct{}

func newSkillSet() skillSet {
	return make(skillSet)
}

func (s skillSet) add(skill string) {
	if skill == "" {
		return
	}
	s[skill] = struct{}{}
}

func (s skillSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
