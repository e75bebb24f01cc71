package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/career-match/internal/search"
)

const defaultTopListings = 5

// Searcher runs a listing search. search.Service implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchAssistant answers every turn with the interpreted criteria and the
// best ranked listings. Its replies only depend on the message and the
// listing pool.
type SearchAssistant struct {
	searcher Searcher
	top      int
}

// NewSearchAssistant creates a SearchAssistant listing up to top results.
func NewSearchAssistant(searcher Searcher, top int) *SearchAssistant {
	if top <= 0 {
		top = defaultTopListings
	}
	return &SearchAssistant{searcher: searcher, top: top}
}

func (a *SearchAssistant) Reply(ctx context.Context, req Request) (string, error) {
	lines, err := a.answer(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Stream emits the reply one line per chunk.
func (a *SearchAssistant) Stream(ctx context.Context, req Request, emit func(chunk string) error) error {
	lines, err := a.answer(ctx, req)
	if err != nil {
		return err
	}

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i < len(lines)-1 {
			line += "\n"
		}
		if err := emit(line); err != nil {
			return err
		}
	}
	return nil
}

func (a *SearchAssistant) answer(ctx context.Context, req Request) ([]string, error) {
	resp, err := a.searcher.Search(ctx, search.Request{Query: req.Message})
	if err != nil {
		return nil, fmt.Errorf("searching listings: %w", err)
	}

	lines := []string{resp.Description + "."}

	all := resp.Buckets.All
	if len(all) == 0 {
		return append(lines, "No listings match yet. Try fewer filters or another city."), nil
	}

	lines = append(lines, fmt.Sprintf("Found %d listings, %d strong matches.", len(all), len(resp.Buckets.HighMatch)))
	for i, e := range all {
		if i == a.top {
			break
		}

		line := fmt.Sprintf("%d. %s", i+1, e.Item.Title)
		if e.Item.Company != "" {
			line += " at " + e.Item.Company
		}
		if e.Item.Location != "" {
			line += " (" + e.Item.Location + ")"
		}
		if e.Result.Scored {
			line += fmt.Sprintf(", match %d%%", e.Result.Value())
		}
		if len(e.Result.MissingRequired) > 0 && e.Result.Scored {
			line += ", missing " + strings.Join(e.Result.MissingRequired, ", ")
		}
		lines = append(lines, line)
	}

	return lines, nil
}
