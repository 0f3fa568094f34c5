package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/seatcheck/internal/bindings"
	"github.com/alfredjeanlab/seatcheck/internal/client"
	"github.com/alfredjeanlab/seatcheck/internal/model"
	"github.com/alfredjeanlab/seatcheck/internal/presence"
	"github.com/alfredjeanlab/seatcheck/internal/stats"
	"github.com/alfredjeanlab/seatcheck/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func sessionLine(s *model.Session) string {
	return fmt.Sprintf("%s %s in %s, %s-%s",
		s.SubjectCode, s.Section, s.Room,
		s.Start.Format("Mon 15:04"), s.End.Format("15:04"))
}

func printSession(w io.Writer, info *client.SessionInfo) {
	if info.Session == nil {
		fmt.Fprintln(w, ui.RenderMuted("No class in progress"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Session:"), sessionLine(info.Session))
	fmt.Fprintf(w, "Students:   %d\n", info.Students)
	if !info.Subscribed {
		fmt.Fprintln(w, ui.RenderError("Devices:    not subscribed (events are not being received)"))
	}
	if sup := info.Supervisor; sup != nil {
		if sup.Ended {
			fmt.Fprintln(w, ui.RenderMuted("Class has ended; submit before it is dropped"))
		}
		if sup.LastError != "" {
			fmt.Fprintf(w, "%s %s\n", ui.RenderError("Last error:"), sup.LastError)
		}
	}
}

// stateDetail summarizes how a student reached their state.
func stateDetail(st model.AttendanceState) string {
	switch st.Kind {
	case model.StateTapPending:
		return "tapped " + st.TapTimestamp.Format("15:04:05") + ", waiting for seat"
	case model.StateConfirmed:
		if st.Weight != nil {
			return fmt.Sprintf("tap + seat %.1f", *st.Weight)
		}
		return "tap only"
	case model.StateAbsent:
		return string(st.Reason)
	case model.StateManualOverride:
		return "override by " + st.SetBy
	default:
		return ""
	}
}

func printStates(w io.Writer, rows []client.StudentRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tNAME\tSTATUS\tDETAIL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StudentID, r.DisplayName, ui.RenderLabel(r.Label), stateDetail(r.State))
	}
	tw.Flush()
}

func printSummary(w io.Writer, s stats.Summary) {
	fmt.Fprintf(w, "Total:      %d\n", s.Total)
	fmt.Fprintf(w, "%s  %d\n", ui.RenderLabel("Present"), s.Present)
	fmt.Fprintf(w, "%s     %d\n", ui.RenderLabel("Late"), s.Late)
	fmt.Fprintf(w, "%s   %d\n", ui.RenderLabel("Absent"), s.Absent)
	fmt.Fprintf(w, "Attendance: %.1f%%\n", s.AttendanceRate*100)
	fmt.Fprintf(w, "Punctual:   %.1f%%\n", s.PunctualityRate*100)
}

func printRecords(w io.Writer, records []*model.AttendanceRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSUBJECT\tSECTION\tSTUDENT\tSTATUS\tRFID\tSEAT\tBY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date, r.SubjectCode, r.Section, r.StudentID,
			ui.RenderLabel(label(r.Status)), yesNo(r.ConfirmedByRFID), yesNo(r.ConfirmedByWeight), r.SubmittedBy)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d records\n", len(records))
}

func printBindings(w io.Writer, list []bindings.Binding) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no sensor bindings")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tSTUDENT\tSCOPE\tBOUND AT")
	for _, b := range list {
		scope := "persistent"
		if b.SessionScoped() {
			scope = "session"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.SensorID, b.StudentID, scope, b.BoundAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func printDevices(w io.Writer, devices []presence.Entry) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "no devices seen")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tKIND\tROOM\tLAST SEEN\tIDLE\tEVENTS")
	for _, d := range devices {
		idle := (time.Duration(d.IdleSecs) * time.Second).String()
		if d.Silent {
			idle = ui.RenderError(idle + " (silent)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			d.DeviceID, d.Kind, d.Room, d.LastSeen.Local().Format(timeLayout), idle, d.EventCount)
	}
	tw.Flush()
}

// label turns a committed status into its display label.
func label(s model.Status) string {
	switch s {
	case model.StatusPresent:
		return "Present"
	case model.StatusLate:
		return "Late"
	case model.StatusAbsent:
		return "Absent"
	default:
		return string(s)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
