package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/export"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/storage"
)

var (
	exportSource string
	exportFormat string
	exportYear   int
)

func init() {
	exportCmd.Flags().StringVarP(&exportSource, "source", "s", "openalex", "Collection to export: flora, or anything else for publications")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl", "Output format: jsonl, csv, bibtex")
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "Only records from this publication year")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export stored records as JSONL, CSV or BibTeX",
	Long: `Export stored records as JSONL, CSV or BibTeX. Without a file argument
the export is written to stdout.

Examples:
  pubharvest export --format csv publications_2024.csv --year 2024
  pubharvest export --source flora > flora.jsonl
  pubharvest export --format bibtex > refs.bib`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	write, err := exportWriter(exportFormat)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	svc, closeDB := mustOpenService()
	defer closeDB()

	recs, err := svc.ListRecords(cmd.Context(), exportSource, storage.Filter{Year: exportYear})
	if err != nil {
		exitWithError(ExitError, "listing records: %v", err)
	}

	if len(args) == 0 {
		if err := write(os.Stdout, recs); err != nil {
			exitWithError(ExitError, "exporting: %v", err)
		}
		return nil
	}

	path := args[0]
	if exportFormat == "jsonl" {
		err = storage.WriteAll(path, recs)
	} else {
		err = writeFile(path, recs, write)
	}
	if err != nil {
		exitWithError(ExitError, "exporting to %s: %v", path, err)
	}

	if humanOutput {
		outputHuman("Exported %d records to %s\n", len(recs), path)
	} else {
		outputJSON(StatusResponse{Status: "exported", Path: path, Count: len(recs)})
	}
	return nil
}

// writeFile creates path and encodes recs into it with write.
func writeFile(path string, recs []record.Record, write func(io.Writer, []record.Record) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exportWriter returns the encoder for a format name.
func exportWriter(format string) (func(io.Writer, []record.Record) error, error) {
	switch format {
	case "jsonl":
		return storage.Encode, nil
	case "csv":
		return export.WriteCSV, nil
	case "bibtex", "bib":
		return func(w io.Writer, recs []record.Record) error {
			_, err := io.WriteString(w, export.ToBibTeXList(recs))
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (valid: jsonl, csv, bibtex)", format)
	}
}
