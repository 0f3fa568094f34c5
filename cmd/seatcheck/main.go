package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
	"github.com/alfredjeanlab/seatcheck/internal/ui"
)

var (
	serverURL  string
	jsonOutput bool
	noColor    bool
	actor      string

	apiClient client.Client
)

func defaultActor() string {
	if s := os.Getenv("SEATCHECK_ACTOR"); s != "" {
		return s
	}
	if a := activeProfile().Actor; a != "" {
		return a
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultServerURL() string {
	if s := os.Getenv("SEATCHECK_URL"); s != "" {
		return s
	}
	if u := activeProfile().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "seatcheck <command>",
	Short: "Classroom attendance from RFID taps and seat sensors",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		apiClient = client.NewHTTPClient(serverURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			apiClient.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "seatcheck server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "instructor name recorded on overrides and submits")

	rootCmd.AddGroup(
		&cobra.Group{ID: "attendance", Title: "Attendance:"},
		&cobra.Group{ID: "devices", Title: "Devices:"},
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Attendance
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statsCmd)

	// Devices
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(unbindCmd)
	rootCmd.AddCommand(bindingsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(emitCmd)

	// Records
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(scheduleCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
		os.Exit(1)
	}
}
