package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/seatcheck/internal/client"
)

// emitCmd injects device events through the server, for testing a room
// without hardware or replaying a reader that was offline.
var emitCmd = &cobra.Command{
	Use:     "emit",
	Short:   "Inject a tap or seat reading as if a device sent it",
	GroupID: "devices",
}

var emitTapCmd = &cobra.Command{
	Use:   "tap <student-id>",
	Short: "Inject an RFID tap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := emitTimestamp(cmd)
		if err != nil {
			return err
		}
		req := &client.EmitTapRequest{StudentID: args[0], Timestamp: at}
		req.ReaderID, _ = cmd.Flags().GetString("reader")
		req.Room, _ = cmd.Flags().GetString("room")

		topic, err := apiClient.EmitTap(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("emitting tap: %w", err)
		}
		printEmitted(topic, req)
		return nil
	},
}

var emitWeightCmd = &cobra.Command{
	Use:   "weight <sensor-id> <weight>",
	Short: "Inject a seat sensor reading",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		weight, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q: %w", args[1], err)
		}
		at, err := emitTimestamp(cmd)
		if err != nil {
			return err
		}
		req := &client.EmitWeightRequest{SensorID: args[0], Weight: weight, Timestamp: at}
		req.Room, _ = cmd.Flags().GetString("room")

		topic, err := apiClient.EmitWeight(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("emitting weight: %w", err)
		}
		printEmitted(topic, req)
		return nil
	},
}

// emitTimestamp parses --at. Zero means the server stamps the event.
func emitTimestamp(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("at")
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q (want RFC3339): %w", s, err)
	}
	return t, nil
}

func printEmitted(topic string, req any) {
	if jsonOutput {
		printJSON(map[string]any{"topic": topic, "event": req})
		return
	}
	fmt.Printf("Published on %s\n", topic)
}

func init() {
	for _, c := range []*cobra.Command{emitTapCmd, emitWeightCmd} {
		c.Flags().String("room", "", "room the device is in (default: the active session's room)")
		c.Flags().String("at", "", "event time, RFC3339 (default: now)")
	}
	emitTapCmd.Flags().String("reader", "cli", "reader ID reported with the tap")

	emitCmd.AddCommand(emitTapCmd)
	emitCmd.AddCommand(emitWeightCmd)
}
