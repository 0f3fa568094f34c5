package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:     "bind <sensor-id> <student-id>",
	Short:   "Assign a seat sensor to a student",
	GroupID: "devices",
	Long: `Assigns a seat sensor to a student, replacing any student it was bound to.

By default the binding persists across sessions. With --session it only
lasts until the active session is submitted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionScoped, _ := cmd.Flags().GetBool("session")
		b, err := apiClient.Bind(cmd.Context(), args[0], args[1], sessionScoped)
		if err != nil {
			return fmt.Errorf("binding %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(b)
			return nil
		}
		fmt.Printf("Sensor %s bound to %s\n", b.SensorID, b.StudentID)
		return nil
	},
}

var unbindCmd = &cobra.Command{
	Use:     "unbind <sensor-id>",
	Short:   "Remove a seat sensor's binding",
	GroupID: "devices",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Unbind(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("unbinding %s: %w", args[0], err)
		}
		if !jsonOutput {
			fmt.Printf("Sensor %s unbound\n", args[0])
		}
		return nil
	},
}

var bindingsCmd = &cobra.Command{
	Use:     "bindings",
	Short:   "List seat sensor bindings",
	GroupID: "devices",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := apiClient.ListBindings(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing bindings: %w", err)
		}
		if jsonOutput {
			printJSON(list)
			return nil
		}
		printBindings(os.Stdout, list)
		return nil
	},
}

func init() {
	bindCmd.Flags().Bool("session", false, "release the binding when the active session is submitted")
}
