package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/service"
)

var getSource string

func init() {
	getCmd.Flags().StringVarP(&getSource, "source", "s", "openalex", "Collection to look in: flora, or anything else for publications")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a single stored record",
	Long: `Show a single stored record by its id.

Examples:
  pubharvest get W2741809807
  pubharvest get --source flora 2024-0042 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	svc, closeDB := mustOpenService()
	defer closeDB()

	id := args[0]
	rec, err := svc.GetRecord(cmd.Context(), getSource, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			exitWithError(ExitDataError, "record not found: %s", id)
		}
		exitWithError(ExitError, "getting record: %v", err)
	}

	if humanOutput {
		printRecordDetail(os.Stdout, *rec)
	} else {
		outputJSON(rec)
	}
	return nil
}

// printRecordDetail prints every field of one record, one per line.
func printRecordDetail(w io.Writer, r record.Record) {
	fmt.Fprintln(w, r.ID)
	fmt.Fprintf(w, "Title:     %s\n", r.TitleString())
	if r.DocumentType != nil {
		fmt.Fprintf(w, "Type:      %s\n", *r.DocumentType)
	}
	if r.Venue != nil {
		fmt.Fprintf(w, "Venue:     %s\n", *r.Venue)
	}
	fmt.Fprintf(w, "Year:      %s\n", yearString(r.Year))
	if r.DOI != nil {
		fmt.Fprintf(w, "DOI:       %s\n", *r.DOI)
	}
	fmt.Fprintf(w, "Provider:  %s\n", r.Provider)
	fmt.Fprintf(w, "Reviewed:  %s\n", validMark(r.IsValid))
	if r.Comment != nil && *r.Comment != "" {
		fmt.Fprintf(w, "Comment:   %s\n", *r.Comment)
	}
}
