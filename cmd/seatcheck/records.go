package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	Short:   "List committed attendance records",
	GroupID: "records",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.RecordsRequest{}
		req.SessionID, _ = cmd.Flags().GetString("session")
		req.Date, _ = cmd.Flags().GetString("date")
		req.SubmittedBy, _ = cmd.Flags().GetString("by")
		req.Limit, _ = cmd.Flags().GetInt("limit")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			t := time.Now().Add(-since)
			req.Since = &t
		}

		records, err := apiClient.ListRecords(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
		if jsonOutput {
			printJSON(records)
			return nil
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

func init() {
	recordsCmd.Flags().String("session", "", "filter by session ID")
	recordsCmd.Flags().String("date", "", "filter by date (YYYY-MM-DD)")
	recordsCmd.Flags().String("by", "", "filter by submitting instructor")
	recordsCmd.Flags().Duration("since", 0, "only records committed within this long (e.g. 24h)")
	recordsCmd.Flags().Int("limit", 100, "maximum number of records")
}
