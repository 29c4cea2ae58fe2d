package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and repair booking session rows",
	}
	cmd.AddCommand(newSessionsActiveCmd())
	cmd.AddCommand(newSessionsRecoverCmd())
	return cmd
}

func newSessionsActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List sessions still in setup or searching",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer st.db.Close()

			rows, err := st.sessions.Active(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tCHANNEL\tPROVIDER\tLEG\tROUTE\tDATE\tSTATUS\tATTEMPTS\tCREATED")
			for _, r := range rows {
				route := "-"
				if r.Departure != "" {
					route = r.Departure + "→" + r.Arrival
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.DiscordID, r.ChannelID, r.Provider, r.Leg, route,
					orDash(r.Date), strings.ToUpper(string(r.Status)), r.Attempts,
					r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newSessionsRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Mark sessions left active by a stopped process as errored",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer st.db.Close()

			n, err := st.sessions.RecoverOrphans(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d session(s)\n", n)
			return nil
		},
	}
}
