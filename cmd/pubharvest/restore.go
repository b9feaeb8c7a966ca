package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/service"
)

var restoreSource string

func init() {
	restoreCmd.Flags().StringVarP(&restoreSource, "source", "s", "openalex", "Collection to restore into: flora, or anything else for publications")
	rootCmd.AddCommand(restoreCmd)
}

var restoreCmd = &cobra.Command{
	Use:   "restore <dump.jsonl>",
	Short: "Load a JSONL export back into the database",
	Long: `Load a dump written by "export --format jsonl" back into the database,
review annotations included. Use this to move a reviewed collection to a new
database file.

The restore is all or nothing: if any id in the dump is already stored the
command fails and writes nothing.

Examples:
  pubharvest export publications.jsonl
  PUBHARVEST_DB=new.db pubharvest restore publications.jsonl
  pubharvest restore --source flora flora.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	svc, closeDB := mustOpenService()
	defer closeDB()

	res, err := svc.RestoreRecords(cmd.Context(), restoreSource, args[0])
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			exitWithError(ExitDataError, "%v", err)
		}
		exitWithError(ExitError, "restoring %s: %v", args[0], err)
	}

	if humanOutput {
		outputHuman("Restored %d records into %s\n", res.Restored, res.Collection)
	} else {
		outputJSON(StatusResponse{Status: "restored", Path: args[0], Count: res.Restored})
	}
	return nil
}
