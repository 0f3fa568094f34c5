package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the active session and every student's live state",
	GroupID: "attendance",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		info, err := apiClient.GetSession(ctx)
		if err != nil {
			return fmt.Errorf("getting session: %w", err)
		}
		if info.Session == nil {
			if jsonOutput {
				printJSON(info)
			} else {
				printSession(os.Stdout, info)
			}
			return nil
		}

		states, err := apiClient.GetStates(ctx)
		if err != nil {
			return fmt.Errorf("getting states: %w", err)
		}
		if jsonOutput {
			printJSON(map[string]any{"session": info, "students": states.Students})
			return nil
		}
		printSession(os.Stdout, info)
		fmt.Println()
		printStates(os.Stdout, states.Students)
		return nil
	},
}
