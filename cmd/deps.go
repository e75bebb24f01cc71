package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/chat/gemini"
	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/query"
	"github.com/spigell/career-match/internal/search"
	"github.com/spigell/career-match/internal/secrets"
	"github.com/spigell/career-match/internal/vocabulary"
)

// setup builds the logger and reads the config. Failing either is fatal.
func setup() (*zap.Logger, *Config) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		l.Fatal("config is required")
	}

	return l, config
}

func newInterpreter(config *Config) (*query.Interpreter, error) {
	policy, err := query.ParsePolicy(config.Interpreter.Policy)
	if err != nil {
		return nil, err
	}

	vocab, err := vocabulary.Load(config.VocabularyFile)
	if err != nil {
		return nil, err
	}

	return query.New(vocab, query.WithPolicy(policy))
}

func newScorer(config *Config) (*match.Scorer, error) {
	scorer, err := match.NewScorer(config.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	return scorer, nil
}

func newSource(config *Config, l *zap.Logger) (listing.Source, error) {
	if file := strings.TrimSpace(config.Listing.File); file != "" {
		l.Debug("serving listings from file", zap.String("filename", file))
		return &listing.FileSource{Path: file}, nil
	}

	if strings.TrimSpace(config.Listing.APIURL) == "" {
		return nil, errors.New("no listing source configured: set listing.file or listing.api-url")
	}

	token, err := secrets.Optional(secrets.Source{
		Name:  "listing api token",
		Value: config.Listing.Token,
		File:  config.Listing.TokenFile,
		Env:   config.Listing.TokenEnv,
	})
	if err != nil {
		return nil, err
	}

	return listing.NewClient(config.Listing.ClientConfig, token, l.Named("listing")), nil
}

func newSearchService(config *Config, l *zap.Logger) (*search.Service, error) {
	interpreter, err := newInterpreter(config)
	if err != nil {
		return nil, fmt.Errorf("building interpreter: %w", err)
	}

	scorer, err := newScorer(config)
	if err != nil {
		return nil, err
	}

	source, err := newSource(config, l)
	if err != nil {
		return nil, fmt.Errorf("building listing source: %w", err)
	}

	filters := config.Filters
	return search.New(source, interpreter, scorer,
		search.WithFilters(&filters),
		search.WithLogger(l.Named("search")),
	), nil
}

// newChatStore returns the session store and a function releasing it.
func newChatStore(ctx context.Context, cfg ChatConfig, l *zap.Logger) (chat.Store, func(), error) {
	if cfg.Redis.MaxTurns <= 0 {
		cfg.Redis.MaxTurns = cfg.MaxTurns
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = cfg.SessionTTL
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", "memory":
		store := chat.NewMemoryStore(cfg.MaxTurns,
			chat.WithIdleTTL(cfg.SessionTTL),
			chat.WithMaxSessions(cfg.MaxSessions),
		)
		return store, func() {}, nil
	case "redis":
		client, err := chat.DialRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		l.Info("chat sessions are kept in redis", zap.String("addr", cfg.Redis.Addr))
		return chat.NewRedisStore(client, cfg.Redis), func() {
			if err := client.Close(); err != nil {
				l.Warn("closing redis client", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported chat store: %s", cfg.Store)
	}
}

func newAssistant(ctx context.Context, cfg ChatConfig, searcher chat.Searcher, l *zap.Logger) (chat.Assistant, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "search":
		return chat.NewSearchAssistant(searcher, cfg.Top), nil
	case "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set chat.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		genLogger := l.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
		if err != nil {
			return nil, err
		}

		top := cfg.Gemini.Top
		if top <= 0 {
			top = cfg.Top
		}

		return gemini.NewAssistant(generator, searcher, top, cfg.Gemini.MaxLogLen,
			logger.WithCommonFields(l, "gemini", generator.Model())), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}
}

// newChatService wires the assistant and the session store. The returned
// function releases the store.
func newChatService(ctx context.Context, config *Config, searcher chat.Searcher, l *zap.Logger) (*chat.Service, func(), error) {
	assistant, err := newAssistant(ctx, config.Chat, searcher, l.Named("assistant"))
	if err != nil {
		return nil, nil, fmt.Errorf("building chat assistant: %w", err)
	}

	store, closeStore, err := newChatStore(ctx, config.Chat, l)
	if err != nil {
		return nil, nil, fmt.Errorf("building chat store: %w", err)
	}

	return chat.NewService(assistant, store, l.Named("chat")), closeStore, nil
}
