package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/search"
)

const (
	BucketAll       = "all"
	BucketHighMatch = "high"
	BucketApplied   = "applied"

	PromptShowAll             = "Show all listings"
	PromptShowHighMatch       = "Show strong matches"
	PromptShowApplied         = "Show applied listings"
	PromptReportByCompanies   = "Report by companies"
	PromptListingsToFile      = "Dump listings to file"
	PromptAppendToExcludeFile = "Append all listings to exclude file"
	PromptExit                = "Exit"
	PromptBack                = "back"
)

var errExit = errors.New("exit requested")

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search listings with a free text query and rank them against your skills",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringSliceP("skills", "s", nil, "your skills. Defaults to the skills found in the query")
	searchCmd.Flags().String("discipline", "", "your discipline")
	searchCmd.Flags().StringP("bucket", "b", BucketAll, "which listings to print: all, high or applied")
	searchCmd.Flags().BoolP("interactive", "i", false, "browse the results interactively")
	searchCmd.Flags().StringP("exclude-file", "e", "", "special file with listings to exclude. Default is unset.")

	viper.BindPFlag("filters.exclude-file", searchCmd.Flags().Lookup("exclude-file"))
}

func runSearch(cmd *cobra.Command, text string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, config := setup()

	svc, err := newSearchService(config, logger)
	if err != nil {
		logger.Fatal("building search service", zap.Error(err))
	}

	req := search.Request{Query: text}
	flags := cmd.Flags()
	if flags.Changed("skills") {
		skills, _ := flags.GetStringSlice("skills")
		req.CandidateSkills = &skills
	}
	req.Discipline, _ = flags.GetString("discipline")

	logger.Info("starting the search", zap.String("query", text))

	resp, err := svc.Search(ctx, req)
	if err != nil {
		logger.Fatal("searching listings", zap.Error(err))
	}

	logger.Info(resp.Description, zap.Int("count", len(resp.Buckets.All)))

	interactive, _ := flags.GetBool("interactive")
	if !interactive {
		bucket, _ := flags.GetString("bucket")
		entries, err := pickBucket(resp.Buckets, bucket)
		if err != nil {
			logger.Fatal("printing results", zap.Error(err))
		}
		printEntries(entries)
		return
	}

	if len(resp.Buckets.All) == 0 {
		logger.Info("exiting", zap.String("reason", "no listings found"))
		return
	}

	browser := &resultBrowser{
		logger:      logger,
		buckets:     resp.Buckets,
		excludeFile: config.Filters.ExcludeFile,
	}
	if err := browser.run(); err != nil && !errors.Is(err, errExit) {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func pickBucket(b match.Buckets[*listing.Listing], name string) ([]match.Entry[*listing.Listing], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BucketAll:
		return b.All, nil
	case BucketHighMatch:
		return b.HighMatch, nil
	case BucketApplied:
		return b.Applied, nil
	default:
		return nil, fmt.Errorf("unknown bucket %q: want all, high or applied", name)
	}
}

func printEntries(entries []match.Entry[*listing.Listing]) {
	if len(entries) == 0 {
		fmt.Println("no listings")
		return
	}
	for _, e := range entries {
		fmt.Println(entryLabel(e))
	}
}

func entryLabel(e match.Entry[*listing.Listing]) string {
	score := "  -"
	if e.Result.Scored {
		score = fmt.Sprintf("%3d", e.Result.Value())
	}

	label := fmt.Sprintf("%s%% %s %s", score, e.ID, e.Item.Title)
	if e.Item.Company != "" {
		label += " / " + e.Item.Company
	}
	if e.Item.Location != "" {
		label += " / " + e.Item.Location
	}
	if len(e.Result.MissingRequired) > 0 {
		label += " / missing: " + strings.Join(e.Result.MissingRequired, ", ")
	}
	return label
}

// resultBrowser walks the user through the buckets of one search.
type resultBrowser struct {
	logger      *zap.Logger
	buckets     match.Buckets[*listing.Listing]
	excludeFile string
}

func (b *resultBrowser) run() error {
	for {
		items := []string{PromptShowAll, PromptShowHighMatch, PromptShowApplied, PromptReportByCompanies, PromptListingsToFile}
		if b.excludeFile != "" && len(b.buckets.All) != 0 {
			items = append(items, PromptAppendToExcludeFile)
		}

		prompt := promptui.Select{
			Label: fmt.Sprintf("%d listings, %d strong matches. What next?", len(b.buckets.All), len(b.buckets.HighMatch)),
			Items: append(items, PromptExit),
		}

		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := b.handleAction(action); err != nil {
			return err
		}
	}
}

func (b *resultBrowser) handleAction(action string) error {
	switch action {
	case PromptShowAll:
		return b.show(b.buckets.All)
	case PromptShowHighMatch:
		return b.show(b.buckets.HighMatch)
	case PromptShowApplied:
		return b.show(b.buckets.Applied)
	case PromptReportByCompanies:
		pretty, _ := json.MarshalIndent(listingsOf(b.buckets.All).ReportByCompany(), "", "  ")
		b.logger.Info(string(pretty), zap.Int("listings count", len(b.buckets.All)))
		return nil
	case PromptListingsToFile:
		filename, err := listingsOf(b.buckets.All).DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		b.logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		return b.appendToExcludeFile()
	case PromptExit:
		b.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// show lists entries until the user goes back. Picking an entry prints it in full.
func (b *resultBrowser) show(entries []match.Entry[*listing.Listing]) error {
	if len(entries) == 0 {
		b.logger.Info("nothing to show")
		return nil
	}

	labels := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		labels = append(labels, entryLabel(e))
	}

	for {
		prompt := promptui.Select{
			Label: "Choose a listing and press ENTER",
			Items: append(labels, PromptBack),
			Size:  10,
		}

		idx, selected, err := prompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		pretty, _ := json.MarshalIndent(entries[idx], "", "  ")
		fmt.Println(string(pretty))
	}
}

func (b *resultBrowser) appendToExcludeFile() error {
	excluded, err := listing.LoadExcluded(b.excludeFile)
	if err != nil {
		return err
	}

	excluded.Append(listingsOf(b.buckets.All).ToExcluded())

	if err := excluded.ToFile(b.excludeFile); err != nil {
		return err
	}

	b.logger.Info("appended to exclude file", zap.String("filename", b.excludeFile))

	b.buckets = dropIDs(b.buckets, excluded.IDs())
	return nil
}

func listingsOf(entries []match.Entry[*listing.Listing]) *listing.Listings {
	l := &listing.Listings{Items: make([]*listing.Listing, 0, len(entries))}
	for _, e := range entries {
		l.Items = append(l.Items, e.Item)
	}
	return l
}

func dropIDs(b match.Buckets[*listing.Listing], ids []string) match.Buckets[*listing.Listing] {
	drop := func(e match.Entry[*listing.Listing]) bool {
		return slices.Contains(ids, e.ID)
	}
	b.All = slices.DeleteFunc(b.All, drop)
	b.HighMatch = slices.DeleteFunc(b.HighMatch, drop)
	b.Applied = slices.DeleteFunc(b.Applied, drop)
	return b
}
