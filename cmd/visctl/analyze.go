package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"visibility-backend/internal/analysis"
	"visibility-backend/internal/clientstate"
	"visibility-backend/internal/events"
	"visibility-backend/internal/visibility"
)

type analyzeOptions struct {
	company     string
	url         string
	industry    string
	prompts     []string
	competitors []string
	providers   []string
	webSearch   bool
	asJSON      bool
	quiet       bool
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a visibility analysis and stream its progress",
		Example: `  visctl analyze --company Acme --url https://acme.example --prompt "best crm for startups"
  visctl analyze --company Acme --competitor Zenith --provider openai --provider anthropic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.company) == "" {
				return errors.New("--company is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runAnalyze(ctx, newClient(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.company, "company", "", "Brand name")
	f.StringVar(&opts.url, "url", "", "Brand website")
	f.StringVar(&opts.industry, "industry", "", "Industry hint")
	f.StringArrayVarP(&opts.prompts, "prompt", "p", nil, "Prompt to ask (repeatable); generated when omitted")
	f.StringArrayVar(&opts.competitors, "competitor", nil, "Competitor name (repeatable); discovered when omitted")
	f.StringSliceVar(&opts.providers, "provider", nil, "Provider id (repeatable); server defaults when omitted")
	f.BoolVar(&opts.webSearch, "web-search", false, "Ask providers to search the web")
	f.BoolVar(&opts.asJSON, "json", false, "Print the final analysis as JSON")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func (o analyzeOptions) request() analysis.AnalyzeRequest {
	req := analysis.AnalyzeRequest{
		Company:      visibility.Company{Name: o.company, URL: o.url, Industry: o.industry},
		Prompts:      o.prompts,
		Providers:    o.providers,
		UseWebSearch: o.webSearch,
	}
	for _, name := range o.competitors {
		req.Competitors = append(req.Competitors, visibility.Competitor{Name: name})
	}
	return req
}

func runAnalyze(ctx context.Context, c *client, opts analyzeOptions, out, progress io.Writer) error {
	onEvent := func(ev events.Event, s clientstate.State) {
		if !opts.quiet {
			printEvent(progress, ev, s)
		}
	}
	state, err := c.analyze(ctx, opts.request(), onEvent)
	if err != nil {
		return err
	}
	if state.Halted() {
		if state.ErrorCode != "" {
			return fmt.Errorf("analysis failed: %s (%s)", state.ErrorMessage, state.ErrorCode)
		}
		return fmt.Errorf("analysis failed: %s", state.ErrorMessage)
	}
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state.FinalResult)
	}
	printGrid(out, state)
	printRankings(out, state.FinalResult)
	return nil
}

func printEvent(w io.Writer, ev events.Event, s clientstate.State) {
	counts := s.Counts()
	prefix := fmt.Sprintf("[%3d%%] %-24s", s.Progress, s.Stage)
	switch p := ev.Data.(type) {
	case events.Progress:
		if p.Message != "" {
			fmt.Fprintf(w, "%s %s\n", prefix, p.Message)
		}
	case events.CompetitorFound:
		fmt.Fprintf(w, "%s competitor: %s\n", prefix, p.Competitor.Name)
	case events.PromptGenerated:
		fmt.Fprintf(w, "%s prompt %d: %s\n", prefix, p.Index+1, p.Prompt)
	case events.AnalysisComplete:
		line := fmt.Sprintf("%s %-12s %-9s %d/%d", prefix, p.Provider, p.Status, counts.Completed+counts.Failed+counts.Skipped, counts.Total())
		if p.Error != "" {
			line += " " + p.Error
		}
		fmt.Fprintln(w, line)
	case events.Error:
		fmt.Fprintf(w, "%s error: %s\n", prefix, p.Message)
	}
}

func printGrid(w io.Writer, s clientstate.State) {
	tiles := s.Tiles()
	if len(tiles) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROMPT\tPROVIDER\tSTATUS\tBRAND\tPOSITION")
	for _, t := range tiles {
		mentioned, position := "-", "-"
		if t.Result != nil {
			mentioned = "no"
			if t.Result.BrandMentioned {
				mentioned = "yes"
			}
			if t.Result.BrandPosition != nil {
				position = fmt.Sprint(*t.Result.BrandPosition)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", truncate(t.Prompt, 48), t.Provider, t.Status, mentioned, position)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}

func printRankings(w io.Writer, p *visibility.AggregatedPayload) {
	if p == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tVISIBILITY\tSHARE\tAVG POS\tSENTIMENT\tWEEK")
	for i, row := range p.Competitors {
		name := row.Name
		if row.IsOwn {
			name += " *"
		}
		avg, week := "-", "-"
		if row.AveragePosition != nil {
			avg = fmt.Sprintf("%.2f", *row.AveragePosition)
		}
		if row.WeeklyChange != nil {
			week = fmt.Sprintf("%+d", *row.WeeklyChange)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d%%\t%s\t%d\t%s\n", i+1, name, row.VisibilityScore, row.ShareOfVoice, avg, row.SentimentScore, week)
	}
	_ = tw.Flush()
	s := p.Summary
	fmt.Fprintf(w, "\n%d tasks: %d completed, %d failed, %d skipped", s.TotalTasks, s.Completed, s.Failed, s.Skipped)
	if p.ID != "" {
		fmt.Fprintf(w, " (saved as %s)", p.ID)
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
