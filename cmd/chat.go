package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
)

const (
	commandExit  = "/exit"
	commandReset = "/reset"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the job search assistant",
	Long: "Talk to the job search assistant. With --remote the turns go to a running " +
		"career-match api, otherwise the assistant runs in-process.\n" +
		"Type " + commandReset + " to start a new session and " + commandExit + " to quit.",
	Run: func(cmd *cobra.Command, _ []string) {
		runChat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().BoolP("remote", "r", false, "send turns to the api at chat.client.url")
	chatCmd.Flags().StringP("url", "u", "", "base url of the api (default http://localhost:8080)")
	chatCmd.Flags().String("session", "", "resume an existing session")

	viper.BindPFlag("chat.client.url", chatCmd.Flags().Lookup("url"))
}

// turnFunc sends one message and prints the reply as it arrives.
type turnFunc func(ctx context.Context, message string) error

func runChat(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, config := setup()

	session, _ := cmd.Flags().GetString("session")
	remote, _ := cmd.Flags().GetBool("remote")

	var (
		send  turnFunc
		reset func(ctx context.Context) error
	)

	if remote || cmd.Flags().Changed("url") {
		client := chat.NewClient(config.Chat.Client)
		client.SetSession(session)
		send, reset = remoteTurns(client)
		logger.Debug("chatting with a remote api", zap.String("url", config.Chat.Client.URL))
	} else {
		svc, err := newSearchService(config, logger)
		if err != nil {
			logger.Fatal("building search service", zap.Error(err))
		}
		chatService, closeStore, err := newChatService(ctx, config, svc, logger)
		if err != nil {
			logger.Fatal("building chat service", zap.Error(err))
		}
		defer closeStore()
		send, reset = localTurns(chatService, session)
	}

	prompt := promptui.Prompt{Label: "you"}
	for {
		line, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		switch message := strings.TrimSpace(line); message {
		case "":
			continue
		case commandExit:
			return
		case commandReset:
			if err := reset(ctx); err != nil {
				logger.Warn("resetting session", zap.Error(err))
			}
			continue
		default:
			if err := send(ctx, message); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("chat turn failed", zap.Error(err), zap.Bool("retryable", errors.Is(err, chat.ErrRetryable)))
			}
		}
	}
}

func remoteTurns(client *chat.Client) (turnFunc, func(context.Context) error) {
	send := func(ctx context.Context, message string) error {
		printed := 0
		_, err := client.Stream(ctx, message, func(partial string) {
			fmt.Print(partial[printed:])
			printed = len(partial)
		})
		fmt.Println()
		return err
	}

	return send, client.Reset
}

func localTurns(svc *chat.Service, session string) (turnFunc, func(context.Context) error) {
	send := func(ctx context.Context, message string) error {
		var err error
		session, err = svc.Stream(ctx, session, message, func(chunk string) error {
			fmt.Print(chunk)
			return nil
		})
		fmt.Println()
		return err
	}

	reset := func(ctx context.Context) error {
		if session == "" {
			return nil
		}
		err := svc.Reset(ctx, session)
		session = ""
		return err
	}

	return send, reset
}
