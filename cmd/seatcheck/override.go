package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/ui"
)

var overrideCmd = &cobra.Command{
	Use:     "override <student-id> <present|late|absent>",
	Short:   "Set a student's attendance by hand",
	GroupID: "attendance",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID := args[0]
		c := model.Classification(strings.ToLower(args[1]))
		if !c.IsValid() {
			return fmt.Errorf("invalid classification %q (must be present, late or absent)", args[1])
		}

		row, err := apiClient.Override(cmd.Context(), studentID, c, actor)
		if err != nil {
			return fmt.Errorf("overriding %s: %w", studentID, err)
		}
		if jsonOutput {
			printJSON(row)
			return nil
		}
		name := row.DisplayName
		if name == "" {
			name = row.StudentID
		}
		fmt.Fprintf(os.Stdout, "%s is now %s\n", name, ui.RenderLabel(row.Label))
		return nil
	},
}
