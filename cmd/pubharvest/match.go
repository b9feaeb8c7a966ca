package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/match"
	"github.com/matsen/pubharvest/internal/record"
)

var (
	matchThreshold float64
	matchStrategy  string
	matchOnlyHits  bool
)

func init() {
	matchCmd.Flags().Float64VarP(&matchThreshold, "threshold", "t", match.DefaultThreshold, "Title similarity threshold between 0 and 1")
	matchCmd.Flags().StringVar(&matchStrategy, "strategy", string(match.Comprehensive), "Matching strategy: exact, fuzzy, comprehensive")
	matchCmd.Flags().BoolVar(&matchOnlyHits, "only-matched", false, "Omit Flora records without candidates")
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match Flora records against the OpenAlex/HAL collection",
	Long: `Match every stored Flora record against the publications collection.

Strategies:
  exact          same canonical DOI (first hit only)
  fuzzy          title similarity at or above the threshold
  comprehensive  years at most one apart; 50 points for a similar title,
                 50 for an equal DOI; sorted by score (default)

Unknown strategies fall back to comprehensive. Matches are computed on
demand and never stored.

Examples:
  pubharvest match
  pubharvest match --strategy fuzzy --threshold 0.9 --human`,
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	svc, closeDB := mustOpenService()
	defer closeDB()

	groups, err := svc.MatchRecords(cmd.Context(), matchThreshold, matchStrategy)
	if err != nil {
		exitWithError(ExitError, "matching: %v", err)
	}
	if matchOnlyHits {
		hits := []record.Group{}
		for _, g := range groups {
			if len(g.Candidates) > 0 {
				hits = append(hits, g)
			}
		}
		groups = hits
	}

	if humanOutput {
		printGroupsHuman(groups)
	} else {
		outputJSON(groups)
	}
	return nil
}

func printGroupsHuman(groups []record.Group) {
	matched := 0
	for _, g := range groups {
		if len(g.Candidates) > 0 {
			matched++
		}
		outputHuman("%s (%s)\n", g.Source.ID, yearString(g.Source.Year))
		outputHuman("  %s\n", truncateString(g.Source.TitleString(), MatchTitleMaxLen))
		for _, c := range g.Candidates {
			var score string
			switch {
			case c.MatchScore != nil:
				score = "score " + strconv.Itoa(*c.MatchScore)
			case c.Similarity != nil:
				score = "sim " + strconv.Itoa(*c.Similarity)
			default:
				score = "doi"
			}
			outputHuman("    -> [%s] %s %s\n", score, c.Provider, c.ID)
			outputHuman("       %s\n", truncateString(c.TitleString(), MatchTitleMaxLen))
		}
	}
	outputHuman("\n%d of %d Flora records matched\n", matched, len(groups))
}
