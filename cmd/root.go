package cmd

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/chat/gemini"
	"github.com/spigell/career-match/internal/filtering"
	"github.com/spigell/career-match/internal/httpapi"
	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/match"
)

const (
	app       = "career-match"
	envPrefix = "CAREER_MATCH"
)

type Config struct {
	Server           httpapi.Config    `mapstructure:"server"`
	VocabularyFile   string            `mapstructure:"vocabulary-file"`
	VocabularyReload string            `mapstructure:"vocabulary-reload"`
	Interpreter      InterpreterConfig `mapstructure:"interpreter"`
	Scoring          match.Config      `mapstructure:"scoring"`
	Listing          ListingConfig     `mapstructure:"listing"`
	Filters          filtering.Config  `mapstructure:"filters"`
	Chat             ChatConfig        `mapstructure:"chat"`
}

type InterpreterConfig struct {
	Policy string `mapstructure:"policy"`
}

type ListingConfig struct {
	listing.ClientConfig `mapstructure:",squash"`

	// File serves listings from a local JSON file instead of the API.
	File      string `mapstructure:"file"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
	TokenEnv  string `mapstructure:"token-env"`
}

type ChatConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Top      int           `mapstructure:"top"`
	Gemini   gemini.Config `mapstructure:"gemini"`
	Store    string        `mapstructure:"store"`
	MaxTurns int           `mapstructure:"max-turns"`
	// SessionTTL and MaxSessions bound the memory store. SessionTTL is also
	// the redis expiry unless redis.ttl is set.
	SessionTTL  time.Duration     `mapstructure:"session-ttl"`
	MaxSessions int               `mapstructure:"max-sessions"`
	Redis       chat.RedisConfig  `mapstructure:"redis"`
	Client      chat.ClientConfig `mapstructure:"client"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "career-match turns free text job queries into search criteria and ranks listings against your skills",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("chat.gemini.api-key-file", envPrefix+"_CHAT_GEMINI_API_KEY_FILE", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is career-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	scoring := match.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read-timeout", "10s")
	v.SetDefault("server.request-timeout", "60s")
	v.SetDefault("interpreter.policy", "last")
	v.SetDefault("scoring.required-weight", scoring.RequiredWeight)
	v.SetDefault("scoring.preferred-weight", scoring.PreferredWeight)
	v.SetDefault("scoring.high-match", scoring.HighMatch)
	v.SetDefault("scoring.medium-match", scoring.MediumMatch)
	v.SetDefault("listing.token-env", envPrefix+"_LISTING_TOKEN")
	v.SetDefault("chat.enabled", true)
	v.SetDefault("chat.provider", "search")
	v.SetDefault("chat.top", 5)
	v.SetDefault("chat.store", "memory")
	v.SetDefault("chat.session-ttl", "24h")
	v.SetDefault("chat.max-sessions", 10000)
	v.SetDefault("chat.client.url", "http://localhost:8080")
}

func initConfig() {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every key has a default, so running without a config file is fine.
	// A file that exists but does not parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
