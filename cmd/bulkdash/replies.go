package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/bulkdash/internal/export"
	"github.com/foxzi/bulkdash/internal/pagination"
	"github.com/foxzi/bulkdash/internal/replies"
)

var (
	replyCampaign  string
	replySentiment string
	replyStart     string
	replyEnd       string
	replyPage      int
	exportDir      string
)

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Reply inbox commands",
}

var repliesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List replies",
	RunE:  runRepliesList,
}

var repliesAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show reply analytics",
	RunE:  runRepliesAnalytics,
}

var repliesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the filtered replies as a spreadsheet",
	RunE:  runRepliesExport,
}

func init() {
	for _, c := range []*cobra.Command{repliesListCmd, repliesExportCmd} {
		c.Flags().StringVar(&replySentiment, "sentiment", "", "Filter by sentiment ("+sentimentValues()+")")
		c.Flags().StringVar(&replyStart, "from", "", "Received on or after (YYYY-MM-DD)")
		c.Flags().StringVar(&replyEnd, "to", "", "Received on or before (YYYY-MM-DD)")
	}
	for _, c := range []*cobra.Command{repliesListCmd, repliesAnalyticsCmd, repliesExportCmd} {
		c.Flags().StringVar(&replyCampaign, "campaign", "", "Only replies to this campaign ID")
	}
	repliesListCmd.Flags().IntVarP(&replyPage, "page", "p", 1, "Page to show")
	repliesExportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Directory to save the export in (default storage.export_dir)")

	repliesCmd.AddCommand(repliesListCmd, repliesAnalyticsCmd, repliesExportCmd)
	rootCmd.AddCommand(repliesCmd)
}

func sentimentValues() string {
	values := make([]string, len(replies.Sentiments))
	for i, s := range replies.Sentiments {
		values[i] = s.Value
	}
	return strings.Join(values, ", ")
}

// replyFilters checks the filter flags
func replyFilters() (pagination.FilterState, error) {
	s := pagination.NewFilterState()
	s.CampaignID = strings.TrimSpace(replyCampaign)
	if replySentiment != "" {
		if !replies.ValidSentiment(replySentiment) {
			return s, fmt.Errorf("unknown sentiment %q (use one of %s)", replySentiment, sentimentValues())
		}
		s.Sentiment = replySentiment
	}
	for _, d := range []string{replyStart, replyEnd} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return s, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	s.StartDate, s.EndDate = replyStart, replyEnd
	return s, nil
}

func runRepliesList(cmd *cobra.Command, args []string) error {
	filters, err := replyFilters()
	if err != nil {
		return err
	}

	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	inbox := replies.New(env.client, env.cfg.Dashboard.PageSize, env.logger)
	defer inbox.Close()
	inbox.Apply(filters)
	inbox.SetPage(replyPage)
	if err := inbox.RefreshPage(ctx); err != nil {
		return fmt.Errorf("failed to list replies: %w", err)
	}

	v := inbox.View()
	if v.Empty {
		fmt.Println(v.EmptyMessage)
		if !v.Filtered {
			fmt.Println(v.EmptyHint)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tFROM\tCAMPAIGN\tSENTIMENT\tFLAGS\tMESSAGE")
	fmt.Fprintln(w, "--------\t----\t--------\t---------\t-----\t-------")
	for _, r := range v.Rows {
		flags := make([]string, len(r.Badges))
		for i, b := range r.Badges {
			flags[i] = b.Text
		}
		msg := strings.Join(strings.Fields(r.Message), " ")
		if r.Media != nil {
			msg += " [" + r.Media.Label + "]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
			r.ReceivedAt,
			r.Sender,
			truncate(r.Campaign, 24),
			r.Sentiment.Emoji, r.Sentiment.Label,
			strings.Join(flags, " "),
			truncate(msg, 60),
		)
	}
	w.Flush()

	if v.ShowControls {
		fmt.Printf("\nPage %d of %d\n", v.Page, v.TotalPages)
	}
	return nil
}

func runRepliesAnalytics(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	inbox := replies.New(env.client, env.cfg.Dashboard.PageSize, env.logger)
	defer inbox.Close()
	inbox.SetCampaign(strings.TrimSpace(replyCampaign))
	if err := inbox.RefreshAnalytics(ctx); err != nil {
		return fmt.Errorf("failed to load reply analytics: %w", err)
	}

	v := inbox.View()
	scope := "all campaigns"
	if v.Filters.CampaignID != "" {
		scope = "campaign " + v.Filters.CampaignID
	}
	fmt.Printf("Reply analytics (%s)\n\n", scope)
	fmt.Printf("  Reply rate:        %v%%\n", v.Analytics.ReplyRate)
	fmt.Printf("  Replies (24h):     %d\n", v.Analytics.RecentReplies24h)

	if len(v.Breakdown) > 0 {
		fmt.Println("\nSentiment:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, b := range v.Breakdown {
			fmt.Fprintf(w, "  %s %s\t%d\n", b.Style.Emoji, b.Style.Label, b.Count)
		}
		w.Flush()
	}
	return nil
}

func runRepliesExport(cmd *cobra.Command, args []string) error {
	filters, err := replyFilters()
	if err != nil {
		return err
	}

	env, err := openEnv(true)
	if err != nil {
		return err
	}
	defer env.Close()

	dir := exportDir
	if dir == "" {
		dir = env.cfg.Storage.ExportDir
	}

	ctx, cancel := signalContext()
	defer cancel()

	// the export button follows the first page of the current filters
	inbox := replies.New(env.client, env.cfg.Dashboard.PageSize, env.logger)
	defer inbox.Close()
	inbox.Apply(filters)
	if err := inbox.RefreshPage(ctx); err != nil {
		return fmt.Errorf("failed to load replies: %w", err)
	}

	d := export.NewDownloader(env.client, env.recorder(), env.logger)
	res, err := d.Download(ctx, filters, inbox.View().ResultCount, dir, Source)
	if errors.Is(err, export.ErrEmptyExport) {
		return fmt.Errorf("no replies match the selected filters, nothing exported")
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Saved %s (%d bytes)\n", res.Path, res.Bytes)
	if sum, err := export.Summarize(res.Path); err == nil {
		fmt.Printf("  Sheet %q, %d replies\n", sum.Sheet, sum.Rows)
	} else {
		env.logger.Warn("could not read export", "file", res.Path, "error", err)
	}
	return nil
}
