package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/query"
	"github.com/spigell/career-match/internal/search"
)

func loadConfig(t *testing.T, yaml string) *Config {
	t.Helper()
	t.Cleanup(func() {
		viper.Reset()
		setDefaults(viper.GetViper())
	})

	if yaml != "" {
		viper.SetConfigType("yaml")
		if err := viper.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("reading config: %v", err)
		}
	}

	config, err := getConfig()
	if err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	return config
}

func TestGetConfigDefaults(t *testing.T) {
	config := loadConfig(t, "")

	if config.Scoring != match.DefaultConfig() {
		t.Fatalf("unexpected scoring defaults: %+v", config.Scoring)
	}
	if config.Server.Addr != ":8080" || config.Server.RequestTimeout != time.Minute {
		t.Fatalf("unexpected server defaults: %+v", config.Server)
	}
	if config.Interpreter.Policy != "last" || config.Chat.Provider != "search" || config.Chat.Store != "memory" {
		t.Fatalf("unexpected defaults: %+v %+v", config.Interpreter, config.Chat)
	}
	if config.Chat.SessionTTL != 24*time.Hour || config.Chat.MaxSessions != 10000 {
		t.Fatalf("unexpected session limits: %v, %d", config.Chat.SessionTTL, config.Chat.MaxSessions)
	}
}

func TestGetConfigFromYAML(t *testing.T) {
	config := loadConfig(t, `
server:
  addr: ":9090"
  read-timeout: 5s
interpreter:
  policy: longest
scoring:
  high-match: 80
listing:
  api-url: https://listings.example.com
  max-pages: 3
  token-file: /run/secrets/token
filters:
  excluded-companies: [Initech]
  exclude-file: excluded.json
chat:
  provider: gemini
  gemini:
    model: gemini-2.5-pro
  store: redis
  redis:
    addr: localhost:6379
    ttl: 1h
`)

	if config.Server.Addr != ":9090" || config.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server config: %+v", config.Server)
	}
	if config.Interpreter.Policy != "longest" {
		t.Fatalf("unexpected policy: %q", config.Interpreter.Policy)
	}
	if config.Scoring.HighMatch != 80 || config.Scoring.RequiredWeight != 0.8 {
		t.Fatalf("expected file values over defaults, got %+v", config.Scoring)
	}
	if config.Listing.APIURL != "https://listings.example.com" || config.Listing.MaxPages != 3 || config.Listing.TokenFile != "/run/secrets/token" {
		t.Fatalf("unexpected listing config: %+v", config.Listing)
	}
	if len(config.Filters.ExcludedCompanies) != 1 || config.Filters.ExcludeFile != "excluded.json" {
		t.Fatalf("unexpected filters config: %+v", config.Filters)
	}
	if config.Chat.Gemini.Model != "gemini-2.5-pro" || config.Chat.Redis.TTL != time.Hour {
		t.Fatalf("unexpected chat config: %+v", config.Chat)
	}
}

func TestNewSource(t *testing.T) {
	source, err := newSource(&Config{Listing: ListingConfig{File: "listings.json"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs, ok := source.(*listing.FileSource); !ok || fs.Path != "listings.json" {
		t.Fatalf("expected a file source, got %T", source)
	}

	cfg := &Config{Listing: ListingConfig{ClientConfig: listing.ClientConfig{APIURL: "https://listings.example.com"}}}
	source, err = newSource(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := source.(*listing.Client); !ok {
		t.Fatalf("expected an api client, got %T", source)
	}

	if _, err := newSource(&Config{}, zap.NewNop()); err == nil {
		t.Fatalf("expected an error without a listing source")
	}
}

func TestNewInterpreterPolicy(t *testing.T) {
	interpreter, err := newInterpreter(&Config{Interpreter: InterpreterConfig{Policy: "first"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if interpreter.Policy() != query.PolicyFirst {
		t.Fatalf("unexpected policy: %q", interpreter.Policy())
	}

	if _, err := newInterpreter(&Config{Interpreter: InterpreterConfig{Policy: "random"}}); err == nil {
		t.Fatalf("expected an error for an unknown policy")
	}
	if _, err := newInterpreter(&Config{VocabularyFile: "does-not-exist.yaml"}); err == nil {
		t.Fatalf("expected an error for a missing vocabulary file")
	}
}

func TestNewAssistant(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	assistant, err := newAssistant(context.Background(), ChatConfig{Provider: "search"}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := assistant.(*chat.SearchAssistant); !ok {
		t.Fatalf("expected a search assistant, got %T", assistant)
	}

	if _, err := newAssistant(context.Background(), ChatConfig{Provider: "gemini"}, nil, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "gemini api key") {
		t.Fatalf("expected a missing key error, got %v", err)
	}

	if _, err := newAssistant(context.Background(), ChatConfig{Provider: "oracle"}, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}

func TestNewChatStore(t *testing.T) {
	store, release, err := newChatStore(context.Background(), ChatConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()
	if _, ok := store.(*chat.MemoryStore); !ok {
		t.Fatalf("expected a memory store, got %T", store)
	}

	if _, _, err := newChatStore(context.Background(), ChatConfig{Store: "etcd"}, zap.NewNop()); err == nil {
		t.Fatalf("expected an error for an unknown store")
	}
}

func TestScheduleVocabularyReload(t *testing.T) {
	svc := search.New(nil, nil, nil)

	if _, err := scheduleVocabularyReload("every now and then", &Config{}, svc, zap.NewNop()); err == nil {
		t.Fatalf("expected an error for an invalid schedule")
	}

	scheduler, err := scheduleVocabularyReload("@every 1h", &Config{}, svc, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scheduler.Entries()) != 1 {
		t.Fatalf("expected one scheduled job, got %d", len(scheduler.Entries()))
	}
}

func entry(id string, score int, applied bool) match.Entry[*listing.Listing] {
	s := score
	return match.Entry[*listing.Listing]{
		ID:     id,
		Item:   &listing.Listing{ID: id, Title: "Engineer " + id, Company: "Acme", Applied: applied},
		Result: match.Result{Score: &s, Scored: true, MissingRequired: []string{"Go"}},
	}
}

func TestPickBucket(t *testing.T) {
	b := match.Bucketize([]match.Entry[*listing.Listing]{
		entry("a", 90, false),
		entry("b", 20, true),
	}, 70, func(l *listing.Listing) bool { return l.Applied })

	cases := map[string]int{"": 2, "all": 2, "HIGH": 1, "applied": 1}
	for name, want := range cases {
		got, err := pickBucket(b, name)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", name, err)
		}
		if len(got) != want {
			t.Fatalf("%q: expected %d entries, got %d", name, want, len(got))
		}
	}

	if _, err := pickBucket(b, "favourites"); err == nil {
		t.Fatalf("expected an error for an unknown bucket")
	}
}

func TestDropIDs(t *testing.T) {
	b := match.Bucketize([]match.Entry[*listing.Listing]{
		entry("a", 90, true),
		entry("b", 80, false),
	}, 70, func(l *listing.Listing) bool { return l.Applied })

	b = dropIDs(b, []string{"a"})
	if len(b.All) != 1 || len(b.HighMatch) != 1 || len(b.Applied) != 0 || b.All[0].ID != "b" {
		t.Fatalf("unexpected buckets: %+v", b)
	}
}

func TestEntryLabel(t *testing.T) {
	got := entryLabel(entry("a", 75, false))
	want := " 75% a Engineer a / Acme / missing: Go"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	unscored := match.Entry[*listing.Listing]{ID: "b", Item: &listing.Listing{ID: "b", Title: "Intern"}}
	if got := entryLabel(unscored); got != "  -% b Intern" {
		t.Fatalf("unexpected unscored label %q", got)
	}
}
