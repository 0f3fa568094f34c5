package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/schedule"
	"github.com/alfredjeanlab/seatcheck/internal/ui"
)

// scheduleCmd reads a schedule file locally. It never contacts the server,
// so a timetable can be checked before it is deployed.
var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Short:   "Show a schedule file and the class it resolves to",
	GroupID: "records",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return fmt.Errorf("--file or SEATCHECK_SCHEDULE_FILE is required")
		}
		instructor, _ := cmd.Flags().GetString("instructor")
		if instructor == "" {
			instructor = actor
		}
		now := time.Now()
		if s, _ := cmd.Flags().GetString("at"); s != "" {
			t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --at %q (want \"YYYY-MM-DD HH:MM\"): %w", s, err)
			}
			now = t
		}

		src, err := schedule.NewFileSource(path)
		if err != nil {
			return err
		}
		entries, err := src.GetSchedules(cmd.Context(), instructor)
		if err != nil {
			return err
		}
		session, ok := schedule.Resolve(entries, now)

		if jsonOutput {
			out := map[string]any{"instructor_id": instructor, "entries": entries, "at": now}
			if ok {
				out["session"] = session
			}
			printJSON(out)
			return nil
		}
		printSchedule(os.Stdout, entries)
		fmt.Println()
		if ok {
			fmt.Printf("%s %s\n", ui.RenderAccent("At "+now.Format("Mon 15:04")+":"), sessionLine(session))
		} else {
			fmt.Println(ui.RenderMuted("No class at " + now.Format("Mon 15:04")))
		}
		return nil
	},
}

func printSchedule(w io.Writer, entries []model.ScheduleEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no classes scheduled")
		return
	}
	sorted := append([]model.ScheduleEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].StartTime < sorted[j].StartTime
	})
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTIME\tSUBJECT\tSECTION\tROOM")
	for _, e := range sorted {
		fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%s\t%s\n", e.Day, e.StartTime, e.EndTime, e.SubjectCode, e.Section, e.Room)
	}
	tw.Flush()
}

func init() {
	scheduleCmd.Flags().String("file", os.Getenv("SEATCHECK_SCHEDULE_FILE"), "schedule TOML file")
	scheduleCmd.Flags().String("instructor", os.Getenv("SEATCHECK_INSTRUCTOR"), "instructor ID (default: --actor)")
	scheduleCmd.Flags().String("at", "", "resolve at this local time, \"YYYY-MM-DD HH:MM\" (default: now)")
}
