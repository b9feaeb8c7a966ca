package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/service"
)

var (
	validateValid   bool
	validateInvalid bool
	validateComment string
)

func init() {
	validateCmd.Flags().BoolVar(&validateValid, "valid", false, "Mark the publication as valid")
	validateCmd.Flags().BoolVar(&validateInvalid, "invalid", false, "Mark the publication as invalid")
	validateCmd.Flags().StringVarP(&validateComment, "comment", "c", "", "Reviewer comment (an empty value clears it)")
	validateCmd.MarkFlagsMutuallyExclusive("valid", "invalid")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Record a review decision on a publication",
	Long: `Record a review decision on a publication of the OpenAlex/HAL/WoS
collection. Only the given flags change; omitted fields keep their value.

Examples:
  pubharvest validate W2741809807 --valid
  pubharvest validate https://hal.science/hal-01234567 --invalid -c "not ours"`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	id := args[0]

	var isValid *bool
	switch {
	case validateValid:
		v := true
		isValid = &v
	case validateInvalid:
		v := false
		isValid = &v
	}
	var comment *string
	if cmd.Flags().Changed("comment") {
		comment = &validateComment
	}
	if isValid == nil && comment == nil {
		exitWithError(ExitError, "nothing to update: pass --valid, --invalid or --comment")
	}

	svc, closeDB := mustOpenService()
	defer closeDB()

	res, err := svc.UpdateValidation(cmd.Context(), id, isValid, comment)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			exitWithError(ExitDataError, "publication not found: %s", id)
		}
		exitWithError(ExitError, "updating %s: %v", id, err)
	}

	if humanOutput {
		state := "invalid"
		if res.IsValid {
			state = "valid"
		}
		outputHuman("%s: %s\n", res.ID, state)
		if res.Comment != nil && *res.Comment != "" {
			outputHuman("  comment: %s\n", *res.Comment)
		}
	} else {
		outputJSON(res)
	}
	return nil
}

// parseOptionalBool parses a tri-state flag value: "" means unset.
func parseOptionalBool(s string) (*bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("expected true or false, got %q", s)
	}
	return &b, nil
}
