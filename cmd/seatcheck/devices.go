package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Short:   "List tap readers and seat sensors and when they were last heard from",
	GroupID: "devices",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		silent, _ := cmd.Flags().GetBool("silent")
		devices, err := apiClient.ListDevices(cmd.Context(), silent)
		if err != nil {
			return fmt.Errorf("listing devices: %w", err)
		}
		if jsonOutput {
			printJSON(devices)
			return nil
		}
		printDevices(os.Stdout, devices)
		return nil
	},
}

func init() {
	devicesCmd.Flags().Bool("silent", false, "only devices that have gone quiet")
}
