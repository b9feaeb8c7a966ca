package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/storage"
)

var (
	listSource   string
	listProvider string
	listYear     int
	listValid    string
	listHasDOI   bool
	listLimit    int
)

func init() {
	listCmd.Flags().StringVarP(&listSource, "source", "s", "openalex", "Collection to list: flora, or anything else for publications")
	listCmd.Flags().StringVar(&listProvider, "provider", "", "Only records from this provider (openalex, hal, flora, wos)")
	listCmd.Flags().IntVar(&listYear, "year", 0, "Only records from this publication year")
	listCmd.Flags().StringVar(&listValid, "valid", "", "Filter by review state: true or false")
	listCmd.Flags().BoolVar(&listHasDOI, "has-doi", false, "Only records with a DOI")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", DefaultListLimit, "Maximum number of records (0 for all)")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records ordered by year and id",
	Long: `List stored records ordered by year and id.

Examples:
  pubharvest list
  pubharvest list --source flora --year 2024 --human
  pubharvest list --provider hal --valid false`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	valid, err := parseOptionalBool(listValid)
	if err != nil {
		exitWithError(ExitError, "--valid: %v", err)
	}

	svc, closeDB := mustOpenService()
	defer closeDB()

	recs, err := svc.ListRecords(cmd.Context(), listSource, storage.Filter{
		Provider: listProvider,
		Year:     listYear,
		Valid:    valid,
		HasDOI:   listHasDOI,
		Limit:    listLimit,
	})
	if err != nil {
		exitWithError(ExitError, "listing records: %v", err)
	}

	if humanOutput {
		if len(recs) == 0 {
			outputHuman("No records\n")
			return nil
		}
		printRecordsHuman(os.Stdout, recs)
		total, err := svc.CountRecords(cmd.Context(), listSource)
		if err != nil {
			exitWithError(ExitError, "counting records: %v", err)
		}
		outputHuman("\n%d of %d stored records\n", len(recs), total)
	} else {
		outputJSON(recs)
	}
	return nil
}
