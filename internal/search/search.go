// Package search ties the interpreter, the listing source, the filter
// pipeline and the scorer into a single search operation.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/filtering"
	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/query"
)

// ErrUpstream marks failures of the listing source. They are worth retrying.
var ErrUpstream = errors.New("listing source unavailable")

// Request is one search. Query is interpreted first and Criteria is applied on
// top of the result. A nil CandidateSkills falls back to the criteria skills;
// when both are empty the results are unscored.
type Request struct {
	Query           string         `json:"query,omitempty"`
	Criteria        query.Criteria `json:"criteria"`
	CandidateSkills *[]string      `json:"candidateSkills,omitempty"`
	Discipline      string         `json:"discipline,omitempty"`
}

// Response carries the effective criteria and the ranked buckets.
type Response struct {
	Criteria    query.Criteria                  `json:"criteria"`
	Description string                          `json:"description"`
	Buckets     match.Buckets[*listing.Listing] `json:"buckets"`
	Filters     []filtering.Status              `json:"filters,omitempty"`
}

// Service runs searches. It is safe for concurrent use.
type Service struct {
	source      listing.Source
	scorer      *match.Scorer
	filters     *filtering.Config
	newSteps    func() []filtering.Filter
	interpreter atomic.Pointer[query.Interpreter]
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFilters sets the filter configuration.
func WithFilters(cfg *filtering.Config) Option {
	return func(s *Service) {
		s.filters = cfg
	}
}

// WithSteps replaces the default filter pipeline. The constructor is called
// once per search since filters hold per-run state.
func WithSteps(newSteps func() []filtering.Filter) Option {
	return func(s *Service) {
		s.newSteps = newSteps
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a search service.
func New(source listing.Source, interpreter *query.Interpreter, scorer *match.Scorer, opts ...Option) *Service {
	s := &Service{
		source:   source,
		scorer:   scorer,
		filters:  &filtering.Config{},
		newSteps: filtering.Default,
		logger:   zap.NewNop(),
	}
	if s.scorer == nil {
		s.scorer = match.MustDefault()
	}
	if interpreter == nil {
		interpreter = query.MustDefault()
	}
	s.interpreter.Store(interpreter)

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// SetInterpreter swaps the interpreter used by subsequent searches.
func (s *Service) SetInterpreter(i *query.Interpreter) {
	if i != nil {
		s.interpreter.Store(i)
	}
}

// Interpreter returns the active interpreter.
func (s *Service) Interpreter() *query.Interpreter {
	return s.interpreter.Load()
}

// Scorer returns the scorer used for ranking.
func (s *Service) Scorer() *match.Scorer {
	return s.scorer
}

// Criteria resolves the effective criteria of a request without fetching.
func (s *Service) Criteria(req Request) query.Criteria {
	var base query.Criteria
	if req.Query != "" {
		base = s.Interpreter().Interpret(req.Query)
	}
	return base.Merge(req.Criteria)
}

// Search fetches, filters, scores and buckets listings for the request.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	criteria := s.Criteria(req)
	log := s.logger.With(logger.QueryFields(req.Query, criteria.Describe())...)

	pool, err := s.source.Listings(ctx, criteria)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	steps := s.newSteps()
	filtered, err := filtering.Run(ctx, s.filters, filtering.Deps{Logger: log, Criteria: criteria}, steps, pool)
	if err != nil {
		return nil, fmt.Errorf("filtering listings: %w", err)
	}

	candidate := match.Candidate{
		Skills:     candidateSkills(req.CandidateSkills, criteria),
		Discipline: req.Discipline,
	}
	entries := Score(s.scorer, filtered.Items, candidate)
	buckets := match.Bucketize(entries, s.scorer.HighMatch(), func(l *listing.Listing) bool {
		return l.Applied
	})

	log.Info("search finished",
		zap.Int("fetched", pool.Len()),
		zap.Int("matched", len(buckets.All)),
		zap.Int("high_match", len(buckets.HighMatch)),
		zap.Bool("scored", candidate.Skills.Known()),
	)

	return &Response{
		Criteria:    criteria,
		Description: criteria.Describe(),
		Buckets:     buckets,
		Filters:     filtering.Describe(steps),
	}, nil
}

// Score builds ranking entries for listings. Nil listings are skipped.
func Score(scorer *match.Scorer, items []*listing.Listing, candidate match.Candidate) []match.Entry[*listing.Listing] {
	entries := make([]match.Entry[*listing.Listing], 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, match.Entry[*listing.Listing]{
			ID:     item.ID,
			Item:   item,
			Result: scorer.Score(item.Requirements(), candidate),
		})
	}
	return entries
}

func candidateSkills(explicit *[]string, criteria query.Criteria) match.Skills {
	if explicit != nil {
		return match.NewSkills(*explicit...)
	}
	if len(criteria.Skills) > 0 {
		return match.NewSkills(criteria.Skills...)
	}
	return match.UnknownSkills()
}
