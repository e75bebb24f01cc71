package match

import (
	"cmp"
	"slices"
)

// Entry couples an item with its identifier and match result.
type Entry[T any] struct {
	ID     string `json:"id"`
	Item   T      `json:"listing"`
	Result Result `json:"match"`
}

// Rank sorts entries in place by score descending, then by ID ascending.
// Unscored entries go after every scored one.
func Rank[T any](entries []Entry[T]) {
	slices.SortStableFunc(entries, func(a, b Entry[T]) int {
		if c := cmp.Compare(b.Result.Value(), a.Result.Value()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Buckets are the three views of a ranked result set.
type Buckets[T any] struct {
	All       []Entry[T] `json:"all"`
	HighMatch []Entry[T] `json:"highMatch"`
	Applied   []Entry[T] `json:"applied"`
}

// Bucketize ranks entries and splits them. applied may be nil.
func Bucketize[T any](entries []Entry[T], highMatch int, applied func(T) bool) Buckets[T] {
	ranked := slices.Clone(entries)
	Rank(ranked)

	b := Buckets[T]{
		All:       ranked,
		HighMatch: []Entry[T]{},
		Applied:   []Entry[T]{},
	}
	if b.All == nil {
		b.All = []Entry[T]{}
	}

	for _, e := range ranked {
		if e.Result.Scored && e.Result.Value() >= highMatch {
			b.HighMatch = append(b.HighMatch, e)
		}
		if applied != nil && applied(e.Item) {
			b.Applied = append(b.Applied, e)
		}
	}

	return b
}

// Tone is the display colour class of a skill badge.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
	ToneInfo    Tone = "info"
)

// Badge is one skill chip shown next to a listing.
type Badge struct {
	Skill    string `json:"skill"`
	Tone     Tone   `json:"tone"`
	Required bool   `json:"required"`
}

// Badges lists matched required, missing required and matched preferred
// skills in that order.
func (r Result) Badges() []Badge {
	out := make([]Badge, 0, len(r.MatchedRequired)+len(r.MissingRequired)+len(r.MatchedPreferred))
	for _, s := range r.MatchedRequired {
		out = append(out, Badge{Skill: s, Tone: ToneSuccess, Required: true})
	}
	for _, s := range r.MissingRequired {
		out = append(out, Badge{Skill: s, Tone: ToneDanger, Required: true})
	}
	for _, s := range r.MatchedPreferred {
		out = append(out, Badge{Skill: s, Tone: ToneInfo})
	}
	return out
}
