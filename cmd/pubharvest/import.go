package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import a Web of Science JSONL export into publications",
	Long: `Import a Web of Science export that has been converted to JSONL, one
record per line with the stored field names (id, doi, title, type, source,
year). DOIs are canonicalized; lines without an id are skipped. Records
already stored are left untouched.

Examples:
  pubharvest import wos_2024.jsonl
  pubharvest import wos_2024.jsonl --human`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	svc, closeDB := mustOpenService()
	defer closeDB()

	res, err := svc.ImportBatch(cmd.Context(), args[0])
	if err != nil {
		exitWithError(ExitDataError, "importing %s: %v", args[0], err)
	}

	if humanOutput {
		outputHuman("Imported %s: %d records, %d new, %d already stored, %d skipped\n",
			args[0], res.Fetched, res.Inserted, res.Existing, res.Skipped)
	} else {
		outputJSON(res)
	}
	return nil
}
