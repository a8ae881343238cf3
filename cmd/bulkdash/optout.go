package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/optout"
)

var optoutShowTemplates bool

var optoutCmd = &cobra.Command{
	Use:   "optout",
	Short: "Opt-out compliance commands",
}

var optoutStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show opt-out analytics and the confirmation queue",
	RunE:  runOptoutStatus,
}

var optoutSendPendingCmd = &cobra.Command{
	Use:   "send-pending",
	Short: "Send all scheduled opt-out confirmations now",
	RunE:  runOptoutSendPending,
}

var optoutCleanCmd = &cobra.Command{
	Use:   "clean <campaign_id>",
	Short: "Remove opted-out contacts from a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runOptoutClean,
}

func init() {
	optoutStatusCmd.Flags().BoolVar(&optoutShowTemplates, "templates", false, "Also print compliant template examples")

	optoutCmd.AddCommand(optoutStatusCmd, optoutSendPendingCmd, optoutCleanCmd)
	rootCmd.AddCommand(optoutCmd)
}

func runOptoutStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	q := optout.New(env.client, nil, env.logger)
	defer q.Close()
	if err := q.Refresh(ctx); err != nil {
		// partial data is still worth printing
		fmt.Fprintf(os.Stderr, "Warning: %v\n\n", err)
	}

	v := q.View()
	if v.AnalyticsLoaded {
		fmt.Println("Opt-out analytics")
		fmt.Printf("  Total opt-outs:        %d\n", v.Analytics.TotalOptOuts)
		fmt.Printf("  Opt-outs (24h):        %d\n", v.Analytics.RecentOptOuts24h)
		fmt.Printf("  Pending confirmations: %d\n", v.Pending)

		if len(v.Rates) > 0 {
			fmt.Println("\nCampaign opt-out rates:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAMPAIGN\tID\tOPT-OUTS\tCONTACTS\tRATE\tLEVEL")
			fmt.Fprintln(w, "--------\t--\t--------\t--------\t----\t-----")
			for _, r := range v.Rates {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					truncate(r.Campaign, 40), r.CampaignID, r.OptOuts, r.TotalContacts, r.Rate, r.Level)
			}
			w.Flush()
		}
	}

	if v.QueueLoaded {
		fmt.Println()
		if v.QueueEmpty {
			fmt.Println(v.EmptyMessage)
		} else {
			fmt.Printf("Confirmation queue (%d of %d):\n", len(v.Queue), v.QueueTotal)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSENDER\tPHONE\tSTATUS\tSCHEDULED\tSENT")
			fmt.Fprintln(w, "--\t------\t-----\t------\t---------\t----")
			for _, r := range v.Queue {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Sender, r.Phone, r.Status, r.Scheduled, r.SentAt)
			}
			w.Flush()
		}
	}

	if optoutShowTemplates && v.Templates != "" {
		fmt.Println("\nCompliant templates:")
		fmt.Println(v.Templates)
	}
	return nil
}

func runOptoutSendPending(cmd *cobra.Command, args []string) error {
	env, err := openEnv(true)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	q := optout.New(env.client, env.recorder(), env.logger)
	defer q.Close()

	report, err := q.SendPending(ctx, Source)
	if errors.Is(err, optout.ErrNothingPending) {
		fmt.Println("No confirmations pending")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(report.Message())
	for _, e := range report.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
	return nil
}

func runOptoutClean(cmd *cobra.Command, args []string) error {
	env, err := openEnv(true)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	q := optout.New(env.client, env.recorder(), env.logger)
	defer q.Close()

	msg, err := q.CleanCampaign(ctx, args[0], Source)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
