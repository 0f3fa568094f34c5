package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
	"github.com/alfredjeanlab/seatcheck/internal/commit"
	"github.com/alfredjeanlab/seatcheck/internal/ui"
)

var submitCmd = &cobra.Command{
	Use:     "submit",
	Short:   "Commit the active session's attendance and reset it",
	GroupID: "attendance",
	Long: `Writes one record per enrolled student and resets the live session.

If attendance was already submitted for this session today by the same
instructor, submit asks before replacing it. Pass --overwrite to replace
without asking.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		req := commit.SubmitRequest{SubmittedBy: actor, Overwrite: overwrite}

		res, err := apiClient.Submit(cmd.Context(), req)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.IsDuplicate() && !overwrite {
			if !ui.IsInteractive() {
				return fmt.Errorf("%d records already submitted; rerun with --overwrite to replace them", apiErr.Existing)
			}
			if !confirm(fmt.Sprintf("%d records already submitted by %s for this session. Replace them?", apiErr.Existing, actor)) {
				fmt.Println("Submit cancelled.")
				return nil
			}
			req.Overwrite = true
			res, err = apiClient.Submit(cmd.Context(), req)
		}
		if err != nil {
			return fmt.Errorf("submitting attendance: %w", err)
		}

		if jsonOutput {
			printJSON(res)
			return nil
		}
		verb := "Submitted"
		if res.Replaced > 0 {
			verb = fmt.Sprintf("Replaced %d records;", res.Replaced)
		}
		fmt.Printf("%s %d records for %s on %s\n\n", verb, len(res.Records), res.SessionID, res.Date)
		printSummary(os.Stdout, res.Stats)
		if len(res.Carried) > 0 {
			fmt.Printf("\nChanged while submitting, still live: %s\n", strings.Join(res.Carried, ", "))
		}
		return nil
	},
}

// confirm asks a yes/no question on stdin. Anything but y or yes is no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	submitCmd.Flags().Bool("overwrite", false, "replace records already submitted for this session")
}
