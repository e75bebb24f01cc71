package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/httpapi"
	"github.com/spigell/career-match/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search, scoring and chat REST API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address (default :8080)")
	serveCmd.Flags().Bool("no-chat", false, "do not expose the chat endpoints")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	logger.Info("starting the career-match api", zap.String("version", version))

	svc, err := newSearchService(config, logger)
	if err != nil {
		logger.Fatal("building search service", zap.Error(err))
	}

	var chatService *chat.Service
	if config.Chat.Enabled && !cmd.Flag("no-chat").Changed {
		var closeStore func()
		chatService, closeStore, err = newChatService(ctx, config, svc, logger)
		if err != nil {
			logger.Fatal("building chat service", zap.Error(err))
		}
		defer closeStore()
	}

	if spec := strings.TrimSpace(config.VocabularyReload); spec != "" {
		scheduler, err := scheduleVocabularyReload(spec, config, svc, logger)
		if err != nil {
			logger.Fatal("scheduling vocabulary reload", zap.Error(err), zap.String("spec", spec))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := httpapi.New(config.Server, svc, chatService, version, logger.Named("http"))
	if err := server.Run(ctx); err != nil {
		logger.Fatal("serving api", zap.Error(err))
	}

	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}

// scheduleVocabularyReload re-reads the vocabulary file on the cron schedule and swaps the
// interpreter of svc. A broken file keeps the current interpreter.
func scheduleVocabularyReload(spec string, config *Config, svc *search.Service, logger *zap.Logger) (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(spec, func() {
		interpreter, err := newInterpreter(config)
		if err != nil {
			logger.Warn("reloading vocabulary failed, keeping the current one",
				zap.Error(err),
				zap.String("filename", config.VocabularyFile),
			)
			return
		}

		svc.SetInterpreter(interpreter)
		logger.Debug("vocabulary reloaded", zap.String("filename", config.VocabularyFile))
	})
	if err != nil {
		return nil, err
	}

	return scheduler, nil
}
