package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	retryBackoff      = time.Second
	// maxQuotaDelay is the longest server-requested wait worth sitting through.
	maxQuotaDelay = 10 * time.Second
)

var (
	sleep = utils.WaitFor

	retryAfterPattern = regexp.MustCompile(`retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (g genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return g.chats.Create(ctx, model, config, history)
}

// Generator sends chat turns to Gemini, retrying temporary failures.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	logger     *zap.Logger
}

// Config configures the Gemini backend.
type Config struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
	MaxLogLen  int    `mapstructure:"max-log-length"`
	Top        int    `mapstructure:"top"`
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, l *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(genaiChats{chats: client.Chats}, model, maxRetries, l), nil
}

func newGenerator(chats chatCreator, model string, maxRetries int, l *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Generator{
		chats:      chats,
		model:      model,
		maxRetries: maxRetries,
		logger:     logger.WithCommonFields(l, "gemini", model),
	}
}

// Model returns the model name used for requests.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent sends message in a chat seeded with history and returns the
// textual reply.
func (g *Generator) GenerateContent(ctx context.Context, system string, history []*genai.Content, message string) (string, error) {
	if err := g.check(message); err != nil {
		return "", err
	}

	var output string
	err := g.retry(ctx, func(chat chatSession) (bool, error) {
		resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
		if err != nil {
			return false, err
		}
		output = strings.TrimSpace(responseText(resp))
		if output == "" {
			return false, errors.New("gemini api returned empty response")
		}
		return false, nil
	}, system, history)

	return output, err
}

// GenerateStream is GenerateContent delivering the reply chunk by chunk. A
// failed attempt is retried only while nothing was emitted.
func (g *Generator) GenerateStream(ctx context.Context, system string, history []*genai.Content, message string, emit func(chunk string) error) error {
	if err := g.check(message); err != nil {
		return err
	}

	return g.retry(ctx, func(chat chatSession) (bool, error) {
		emitted := false
		for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				return emitted, err
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			emitted = true
			if err := emit(text); err != nil {
				return true, err
			}
		}
		if !emitted {
			return false, errors.New("gemini api returned empty response")
		}
		return true, nil
	}, system, history)
}

func (g *Generator) check(message string) error {
	if g == nil || g.chats == nil {
		return errors.New("gemini generator is not initialized")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("message must not be empty")
	}
	return nil
}

// retry runs send in a fresh chat until it succeeds, fails permanently or the
// attempts run out. send reports whether output already reached the caller.
func (g *Generator) retry(ctx context.Context, send func(chat chatSession) (bool, error), system string, history []*genai.Content) error {
	config := &genai.GenerateContentConfig{}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		chat, err := g.chats.Create(ctx, g.model, config, history)
		if err != nil {
			return fmt.Errorf("create chat: %w", err)
		}

		delivered, err := send(chat)
		if err == nil {
			return nil
		}
		lastErr = err

		delay, retryable := retryDelay(err, attempt)
		if delivered || !retryable || attempt == g.maxRetries {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("generate content: %w", lastErr)
}

// retryDelay decides whether err is temporary and how long to wait first.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		delay, ok := quotaDelay(apiErr.Message)
		if !ok {
			return retryBackoff * time.Duration(attempt), true
		}
		return delay, delay <= maxQuotaDelay
	case apiErr.Code >= http.StatusInternalServerError:
		return retryBackoff * time.Duration(attempt), true
	default:
		return 0, false
	}
}

func quotaDelay(message string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(message))
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	return builder.String()
}
