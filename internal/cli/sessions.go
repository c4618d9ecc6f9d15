package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage remembered wallet sessions",
	Long:  `List and forget the remote wallet sessions that are resumed without a new pairing.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runSessionsList)
	},
}

var sessionsForgetCmd = &cobra.Command{
	Use:   "forget <provider>",
	Short: "Forget a remembered session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runSessionsForget(ctx, a, args[0])
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent connection events",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runHistory(a, n)
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd, historyCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsForgetCmd)

	historyCmd.Flags().Int("limit", 20, "Number of events to show (0 for all)")
}

func runSessionsList(ctx context.Context, a *app) error {
	records, err := a.kit.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No remembered sessions.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tADDRESS\tCHAIN\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Provider, r.Address.Hex(), r.ChainID, r.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runSessionsForget(ctx context.Context, a *app, name string) error {
	p, err := connect.ParseProviderID(name)
	if err != nil {
		return err
	}
	if err := a.kit.ForgetSession(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Forgot %s session.\n", ui.SuccessStyle.Render(ui.SymbolCheck), p.DisplayName())
	return nil
}

func runHistory(a *app, n int) error {
	if a.journal == nil {
		return fmt.Errorf("journal is not available")
	}
	events, err := store.ReadJournal(a.journal.Path(), n)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No events yet.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tPROVIDER\tCHAIN\tADDRESS\tERROR")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", ev.TS, ev.Type, ev.Provider, ev.ChainID, ev.Address, ev.Error)
	}
	return w.Flush()
}
