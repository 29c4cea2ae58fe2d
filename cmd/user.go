package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage registered Discord users",
	}
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserDeleteCmd())
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users and which secrets they have stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer st.db.Close()

			users, err := st.users.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDISCORD ID\tSRT\tKTX\tCARD\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					u.ID, u.DiscordID, yesNo(u.HasSRT), yesNo(u.HasKTX), yesNo(u.HasCard),
					u.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newUserDeleteCmd() *cobra.Command {
	var discordID string

	c := &cobra.Command{
		Use:   "delete",
		Short: "Delete a user with their credentials, card and favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer st.db.Close()

			ok, err := st.users.Delete(ctx, discordID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no user with discord id %s", discordID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", discordID)
			return nil
		},
	}
	c.Flags().StringVar(&discordID, "discord-id", "", "discord user id")
	_ = c.MarkFlagRequired("discord-id")
	return c
}
