package main

import (
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/service"
)

var harvestSource string

func init() {
	harvestCmd.Flags().StringVarP(&harvestSource, "source", "s", service.TargetAll, "Source to harvest: flora, openalex (OpenAlex and HAL), all")
	rootCmd.AddCommand(harvestCmd)
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fetch records from the configured providers and store new ones",
	Long: `Fetch records from the configured providers and store the ones whose
ids are not in the database yet.

The openalex target harvests OpenAlex and then HAL into the publications
collection. The flora target harvests the Flora batch API into the flora
collection. "all" runs both pipelines concurrently.

A failed source does not stop the others; the exit code is 4 when any
source failed.

Examples:
  pubharvest harvest
  pubharvest harvest --source flora --human`,
	RunE: runHarvest,
}

func runHarvest(cmd *cobra.Command, args []string) error {
	svc, closeDB := mustOpenService()
	defer closeDB()

	summary, err := svc.TriggerHarvest(cmd.Context(), harvestSource)
	if err != nil {
		exitWithError(ExitError, "harvest: %v", err)
	}

	if humanOutput {
		outputHuman("%s\n", summary.Message)
		for _, d := range summary.Details {
			outputHuman("  %s\n", d)
		}
		if len(summary.Inserted) > 0 {
			outputHuman("Inserted:\n")
		}
		for _, kind := range slices.Sorted(maps.Keys(summary.Inserted)) {
			outputHuman("  %-9s %d\n", kind, summary.Inserted[kind])
		}
	} else {
		outputJSON(summary)
	}

	if summary.Failed() {
		// Deferred Close does not run after os.Exit.
		closeDB()
		os.Exit(ExitPartial)
	}
	return nil
}
