package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/config"
)

var (
	auditAction   string
	auditCampaign string
	auditLimit    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Operator action log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded operator actions, newest first",
	RunE:  runAuditList,
}

func init() {
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (campaign.start, optout.send_pending, optout.clean, replies.export)")
	auditListCmd.Flags().StringVar(&auditCampaign, "campaign", "", "Filter by campaign ID")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries to show")

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := audit.Open(cfg.Storage.AuditPath)
	if err != nil {
		return fmt.Errorf("failed to open audit log (is the dashboard running?): %w", err)
	}
	defer log.Close()

	entries, err := log.List(context.Background(), audit.ListFilter{
		Action:     audit.Action(auditAction),
		CampaignID: auditCampaign,
		Limit:      auditLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No recorded actions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tSOURCE\tCAMPAIGN\tDETAIL")
	fmt.Fprintln(w, "----\t------\t-------\t------\t--------\t------")
	for _, e := range entries {
		campaign := e.CampaignID
		if e.Campaign != "" {
			campaign = e.Campaign
			if e.CampaignID != "" {
				campaign += " (" + e.CampaignID + ")"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			e.Action,
			e.Outcome,
			e.Source,
			campaign,
			truncate(e.Detail, 60),
		)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d entries\n", len(entries))

	return nil
}
