package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named seatcheck servers",
	GroupID: "system",
}

// editProfiles loads the profile file, applies fn and saves the result.
func editProfiles(fn func(f *profileFile) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		msg, err := fn(f)
		if err != nil {
			return err
		}
		if err := f.write(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		remoteActor, _ := cmd.Flags().GetString("as")
		return editProfiles(func(f *profileFile) (string, error) {
			f.Profiles[args[0]] = profile{URL: args[1], NATSURL: natsURL, Actor: remoteActor}
			return fmt.Sprintf("saved remote %s -> %s", args[0], args[1]), nil
		})(cmd, args)
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Forget a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProfiles(func(f *profileFile) (string, error) {
			if _, err := f.lookup(args[0]); err != nil {
				return "", err
			}
			delete(f.Profiles, args[0])
			if f.Active == args[0] {
				f.Active = ""
			}
			return "removed remote " + args[0], nil
		})(cmd, args)
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a remote the default for later commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProfiles(func(f *profileFile) (string, error) {
			if _, err := f.lookup(args[0]); err != nil {
				return "", err
			}
			f.Active = args[0]
			return "using remote " + args[0], nil
		})(cmd, args)
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(f)
			return nil
		}
		if len(f.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes; add one with 'seatcheck remote add <name> <url>'")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\tNAME\tURL\tACTOR")
		for _, name := range f.names() {
			p := f.Profiles[name]
			mark := ""
			if name == f.Active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, name, p.URL, p.Actor)
		}
		return tw.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a remote (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		name := f.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; run 'seatcheck remote use <name>'")
		}
		p, err := f.lookup(name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if name == f.Active {
			name += " (active)"
		}
		fmt.Fprintf(out, "Remote: %s\nURL:    %s\n", name, p.URL)
		if p.NATSURL != "" {
			fmt.Fprintf(out, "NATS:   %s\n", p.NATSURL)
		}
		if p.Actor != "" {
			fmt.Fprintf(out, "Actor:  %s\n", p.Actor)
		}
		return nil
	},
}

func init() {
	remoteAddCmd.Flags().String("nats", "", "NATS URL for 'seatcheck watch'")
	remoteAddCmd.Flags().String("as", "", "instructor name to use with this remote")
	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteUseCmd, remoteListCmd, remoteShowCmd)
}
