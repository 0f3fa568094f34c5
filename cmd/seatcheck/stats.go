package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Summarize attendance for the live session or committed records",
	GroupID: "attendance",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.StatsRequest{}
		req.SessionID, _ = cmd.Flags().GetString("session")
		req.Date, _ = cmd.Flags().GetString("date")
		req.SubmittedBy, _ = cmd.Flags().GetString("by")

		resp, err := apiClient.GetStats(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		if resp.Source == "records" {
			fmt.Println("Committed records")
		} else {
			fmt.Println("Live session")
		}
		printSummary(os.Stdout, resp.Stats)
		return nil
	},
}

func init() {
	statsCmd.Flags().String("session", "", "summarize committed records of this session ID")
	statsCmd.Flags().String("date", "", "summarize committed records of this date (YYYY-MM-DD)")
	statsCmd.Flags().String("by", "", "only records submitted by this instructor")
}
