package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/search"
	"github.com/spigell/career-match/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system string, history []*genai.Content, message string) (string, error)
	GenerateStream(ctx context.Context, system string, history []*genai.Content, message string, emit func(chunk string) error) error
	Model() string
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	defaultTop          = 10
)

// Assistant answers chat turns with Gemini, grounding every turn in a search
// for the user's message.
type Assistant struct {
	generator contentGenerator
	searcher  chat.Searcher
	top       int
	logger    *zap.Logger
	maxLogLen int
}

// NewAssistant creates an Assistant. searcher may be nil, in which case the
// model only sees the conversation.
func NewAssistant(generator contentGenerator, searcher chat.Searcher, top, maxLogLength int, l *zap.Logger) *Assistant {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if top <= 0 {
		top = defaultTop
	}
	if l == nil {
		l = zap.NewNop()
	}

	return &Assistant{
		generator: generator,
		searcher:  searcher,
		top:       top,
		logger:    l,
		maxLogLen: maxLogLength,
	}
}

func (a *Assistant) Reply(ctx context.Context, req chat.Request) (string, error) {
	system, err := a.systemInstruction(ctx, req)
	if err != nil {
		return "", err
	}

	a.logRequest(req, system)

	reply, err := a.generator.GenerateContent(ctx, system, history(req.History), req.Message)
	if err != nil {
		return "", err
	}

	a.logger.Debug("gemini chat response",
		zap.String("session_id", req.SessionID),
		zap.Int("response_length", utf8.RuneCountInString(reply)),
		zap.String("response_preview", utils.TruncateForLog(reply, a.maxLogLen)),
	)

	return reply, nil
}

func (a *Assistant) Stream(ctx context.Context, req chat.Request, emit func(chunk string) error) error {
	system, err := a.systemInstruction(ctx, req)
	if err != nil {
		return err
	}

	a.logRequest(req, system)

	return a.generator.GenerateStream(ctx, system, history(req.History), req.Message, emit)
}

func (a *Assistant) logRequest(req chat.Request, system string) {
	a.logger.Debug("gemini chat request",
		zap.String("session_id", req.SessionID),
		zap.String("model", a.generator.Model()),
		zap.Int("history", len(req.History)),
		zap.Int("system_length", utf8.RuneCountInString(system)),
		zap.String("message_preview", utils.TruncateForLog(req.Message, a.maxLogLen)),
	)
}

type promptListing struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Company         string   `json:"company,omitempty"`
	Location        string   `json:"location,omitempty"`
	Score           *int     `json:"score"`
	MissingRequired []string `json:"missingRequired,omitempty"`
	URL             string   `json:"url,omitempty"`
}

func (a *Assistant) systemInstruction(ctx context.Context, req chat.Request) (string, error) {
	if a.searcher == nil {
		return buildPrompt("unknown", "{}", "[]"), nil
	}

	resp, err := a.searcher.Search(ctx, search.Request{Query: req.Message})
	if err != nil {
		return "", fmt.Errorf("searching listings: %w", err)
	}

	criteriaJSON, err := json.MarshalIndent(resp.Criteria, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal criteria: %w", err)
	}

	listings := make([]promptListing, 0, a.top)
	for i, e := range resp.Buckets.All {
		if i == a.top {
			break
		}
		listings = append(listings, promptListing{
			ID:              e.ID,
			Title:           e.Item.Title,
			Company:         e.Item.Company,
			Location:        e.Item.Location,
			Score:           e.Result.Score,
			MissingRequired: e.Result.MissingRequired,
			URL:             e.Item.URL,
		})
	}

	listingsJSON, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal listings: %w", err)
	}

	return buildPrompt(resp.Description, string(criteriaJSON), string(listingsJSON)), nil
}

func buildPrompt(criteria, criteriaJSON, listingsJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Criteria: {{CRITERIA}}\n{{CRITERIA_JSON}}\n\nListings:\n{{LISTINGS_JSON}}"
	}
	prompt := strings.ReplaceAll(template, "{{CRITERIA}}", criteria)
	prompt = strings.ReplaceAll(prompt, "{{CRITERIA_JSON}}", criteriaJSON)
	prompt = strings.ReplaceAll(prompt, "{{LISTINGS_JSON}}", listingsJSON)
	return prompt
}

func history(turns []chat.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := string(genai.RoleUser)
		if t.Role == chat.RoleAssistant {
			role = string(genai.RoleModel)
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	return out
}
