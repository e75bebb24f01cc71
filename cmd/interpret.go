package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logfields "github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/query"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret <query>",
	Short: "Print the search criteria extracted from a free text query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		interpret(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(interpretCmd)
}

type interpretation struct {
	query.Criteria
	Description string `json:"description"`
}

func interpret(text string) {
	logger, config := setup()

	interpreter, err := newInterpreter(config)
	if err != nil {
		logger.Fatal("building interpreter", zap.Error(err))
	}

	criteria := interpreter.Interpret(text)
	logger.Debug("query interpreted", logfields.QueryFields(text, criteria.Describe())...)

	pretty, _ := json.MarshalIndent(interpretation{Criteria: criteria, Description: criteria.Describe()}, "", "  ")
	fmt.Println(string(pretty))
}
