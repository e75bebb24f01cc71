package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/match"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a set of candidate skills against listing requirements",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringSliceP("required", "r", nil, "required skills of the listing")
	scoreCmd.Flags().StringSliceP("preferred", "p", nil, "preferred skills of the listing")
	scoreCmd.Flags().StringSliceP("skills", "s", nil, "candidate skills. Leave unset to get an unscored result")
	scoreCmd.Flags().String("discipline", "", "candidate discipline")
	scoreCmd.Flags().StringSlice("disciplines", nil, "disciplines the listing is open to")
}

type scoreOutput struct {
	match.Result
	Badges []match.Badge `json:"badges"`
}

func score(cmd *cobra.Command) {
	logger, config := setup()

	scorer, err := newScorer(config)
	if err != nil {
		logger.Fatal("building scorer", zap.Error(err))
	}

	flags := cmd.Flags()
	required, _ := flags.GetStringSlice("required")
	preferred, _ := flags.GetStringSlice("preferred")
	disciplines, _ := flags.GetStringSlice("disciplines")
	discipline, _ := flags.GetString("discipline")

	candidate := match.Candidate{Skills: match.UnknownSkills(), Discipline: discipline}
	if flags.Changed("skills") {
		skills, _ := flags.GetStringSlice("skills")
		candidate.Skills = match.NewSkills(skills...)
	}

	result := scorer.Score(match.Requirements{
		Required:    required,
		Preferred:   preferred,
		Disciplines: disciplines,
	}, candidate)

	pretty, _ := json.MarshalIndent(scoreOutput{Result: result, Badges: result.Badges()}, "", "  ")
	fmt.Println(string(pretty))
}
