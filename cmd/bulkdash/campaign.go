package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/compliance"
	"github.com/foxzi/bulkdash/internal/launcher"
	"github.com/foxzi/bulkdash/internal/monitor"
)

var (
	startFile         string
	startName         string
	startTemplate     string
	startTemplateFile string
	startRateLimit    int
	startAPIKey       string

	listSearch string
	listPage   int
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign commands",
}

var campaignStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a campaign from a contact sheet",
	Long: `Start a campaign from an .xlsx contact sheet. The first sheet needs
phone and name columns; any column can be used as a {placeholder} in the
message template. The opt-out footer is appended when the template lacks it.`,
	RunE: runCampaignStart,
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns with their progress",
	RunE:  runCampaignList,
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status <campaign_id>",
	Short: "Show one campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignStatus,
}

var campaignWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow campaign progress until interrupted",
	RunE:  runCampaignWatch,
}

func init() {
	campaignStartCmd.Flags().StringVarP(&startFile, "file", "f", "", "Contact sheet (.xlsx)")
	campaignStartCmd.Flags().StringVarP(&startName, "name", "n", "", "Campaign name")
	campaignStartCmd.Flags().StringVarP(&startTemplate, "template", "t", "", "Message template")
	campaignStartCmd.Flags().StringVar(&startTemplateFile, "template-file", "", "Read the message template from a file")
	campaignStartCmd.Flags().IntVar(&startRateLimit, "rate-limit", launcher.DefaultRateLimit,
		fmt.Sprintf("Seconds between messages (%d-%d)", launcher.MinRateLimit, launcher.MaxRateLimit))
	campaignStartCmd.Flags().StringVar(&startAPIKey, "api-key", "", "Messaging provider API key (default backend.api_key)")
	campaignStartCmd.MarkFlagRequired("file")
	campaignStartCmd.MarkFlagRequired("name")
	campaignStartCmd.MarkFlagsMutuallyExclusive("template", "template-file")

	for _, c := range []*cobra.Command{campaignListCmd, campaignWatchCmd} {
		c.Flags().StringVarP(&listSearch, "search", "s", "", "Only campaigns whose name contains this text")
		c.Flags().IntVarP(&listPage, "page", "p", 1, "Page to show")
	}

	campaignCmd.AddCommand(campaignStartCmd, campaignListCmd, campaignStatusCmd, campaignWatchCmd)
	rootCmd.AddCommand(campaignCmd)
}

func runCampaignStart(cmd *cobra.Command, args []string) error {
	env, err := openEnv(true)
	if err != nil {
		return err
	}
	defer env.Close()

	req := launcher.StartRequest{
		Name:      startName,
		Template:  startTemplate,
		RateLimit: startRateLimit,
		APIKey:    startAPIKey,
	}
	if req.APIKey == "" {
		req.APIKey = env.cfg.Backend.APIKey
	}
	if startTemplateFile != "" {
		data, err := os.ReadFile(startTemplateFile)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		req.Template = strings.TrimRight(string(data), "\n")
	}
	if err := launcher.ReadFile(startFile, &req); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	policy := compliance.NewPolicy(env.cfg.Compliance.Brand)
	l := launcher.New(env.client, policy, env.recorder(), env.logger)

	res, err := l.Launch(ctx, req, Source)
	if err != nil {
		var verr *launcher.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "Campaign not started:")
			for _, p := range verr.Problems {
				fmt.Fprintf(os.Stderr, "  - %s\n", p)
			}
			return errors.New("invalid campaign")
		}
		return fmt.Errorf("failed to start campaign: %w", err)
	}

	fmt.Printf("Campaign started: %s\n", res.CampaignID)
	if res.Message != "" {
		fmt.Printf("  %s\n", res.Message)
	}
	fmt.Printf("  Contacts:   %d", res.Report.Contacts)
	if res.Report.Skipped > 0 {
		fmt.Printf(" (%d rows skipped)", res.Report.Skipped)
	}
	fmt.Println()
	rate := req.RateLimit
	if rate == 0 {
		rate = launcher.DefaultRateLimit
	}
	fmt.Printf("  Rate limit: %ds between messages\n", rate)
	if res.FooterAdded {
		fmt.Printf("  Footer added: %q\n", policy.Footer())
	}
	for _, w := range res.Report.Warnings {
		fmt.Printf("  Warning: %s\n", w)
	}
	if res.Report.Preview != "" {
		fmt.Printf("\nFirst message:\n%s\n", res.Report.Preview)
	}
	return nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	m := newMonitor(env)
	m.SetSearch(listSearch)
	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	m.SetPage(listPage)

	printCampaigns(os.Stdout, m.View())
	return nil
}

func runCampaignStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := env.client.CampaignStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}

	row := monitor.NewRow(resp.Campaign)
	fmt.Printf("Campaign: %s\n\n", row.ID)
	fmt.Printf("Name:      %s\n", row.Name)
	fmt.Printf("Status:    %s\n", row.StatusLabel)
	fmt.Printf("Progress:  %d%% (%s)\n", row.Percent, row.ProgressLabel)
	fmt.Printf("Delivered: %d\n", row.Delivered)
	fmt.Printf("Failed:    %d\n", row.Failed)
	fmt.Printf("Created:   %s\n", row.CreatedAt)

	if len(resp.Stats) > 0 {
		keys := make([]string, 0, len(resp.Stats))
		for k := range resp.Stats {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		fmt.Println("\nMessage stats:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s\t%d\n", k, resp.Stats[k])
		}
		w.Flush()
	}
	return nil
}

func runCampaignWatch(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	m := newMonitor(env)
	m.SetSearch(listSearch)

	first := true
	m.OnUpdate(func(v monitor.View) {
		if first {
			// the requested page only exists once data is in
			first = false
			m.SetPage(listPage)
			v = m.View()
		}
		fmt.Print("\033[H\033[2J")
		printCampaigns(os.Stdout, v)
		fmt.Printf("\nRefreshing every %s, Ctrl+C to stop\n", env.cfg.Dashboard.PollInterval)
	})

	m.Activate(ctx)
	<-ctx.Done()
	m.Deactivate()
	return nil
}

func newMonitor(env *cliEnv) *monitor.Monitor {
	return monitor.New(env.client, monitor.Options{
		Interval: env.cfg.Dashboard.PollInterval,
		PageSize: env.cfg.Dashboard.PageSize,
	}, env.logger)
}

func printCampaigns(out io.Writer, v monitor.View) {
	if v.Empty {
		fmt.Fprintln(out, v.EmptyMessage)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tDELIVERED\tFAILED\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t--------\t---------\t------\t-------")
	for _, r := range v.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%% (%d/%d)\t%d\t%d\t%s\n",
			r.ID,
			truncate(r.Name, 40),
			r.StatusLabel,
			r.Percent, r.Sent, r.Total,
			r.Delivered,
			r.Failed,
			r.CreatedAt,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d campaigns", v.Total)
	if v.ShowControls {
		fmt.Fprintf(out, " (page %d of %d)", v.Page, v.TotalPages)
	}
	fmt.Fprintln(out)
}
