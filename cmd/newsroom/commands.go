package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/feed"
	"github.com/pders01/newsroom/internal/history"
	"github.com/pders01/newsroom/internal/progress"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/stats"
	"github.com/pders01/newsroom/internal/table"
	"github.com/pders01/newsroom/internal/tui"
	"github.com/pders01/newsroom/internal/validation"
	"github.com/pders01/newsroom/internal/workspace"
)

var errNotConfirmed = errors.New("refusing to continue without --yes")

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, &api.ValidationError{Field: "id", Message: fmt.Sprintf("invalid history id %q", s)}
	}
	return id, nil
}

func dateLayout(cfg *config.Config) string {
	if cfg.UI.DateFormat != "" {
		return cfg.UI.DateFormat
	}
	return rows.DefaultDateFormat
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		feeds       []string
		criteria    string
		model       string
		temperature float64
		similarity  float64
		relevance   float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a pipeline run and follow its progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			req := s.ws.DefaultRequest()
			flags := cmd.Flags()
			if flags.Changed("feed") {
				req.RSSFeeds = api.FeedList(feeds)
			}
			if flags.Changed("criteria") {
				req.Criteria = criteria
			}
			if flags.Changed("model") {
				req.LLMModel = model
			}
			if flags.Changed("temperature") {
				req.LLMTemperature = temperature
			}
			if flags.Changed("similarity") {
				req.SimilarityThreshold = similarity
			}
			if flags.Changed("relevance") {
				req.RelevanceThreshold = relevance
			}
			return followRun(cmd, s.ws, req)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&feeds, "feed", nil, "Feed URL (repeatable, defaults to the last run or [job] rss_feeds)")
	f.StringVar(&criteria, "criteria", "", "Selection criteria")
	f.StringVar(&model, "model", "", "LLM model")
	f.Float64Var(&temperature, "temperature", 0, "LLM temperature (0-2)")
	f.Float64Var(&similarity, "similarity", 0, "Similarity threshold for duplicates (0-1)")
	f.Float64Var(&relevance, "relevance", 0, "Relevance threshold (0-1)")
	return cmd
}

// followRun submits req and prints every changed step until the job ends.
func followRun(cmd *cobra.Command, ws *workspace.Workspace, req api.StartRequest) error {
	out := cmd.OutOrStdout()
	events := make(chan workspace.Event, 64)
	ws.Subscribe(func(e workspace.Event) {
		select {
		case events <- e:
		default:
		}
	})

	jobID, err := ws.StartJob(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Started job %s\n", jobID)

	printed := make(map[int]string)
	printSlots := func() {
		for i, slot := range ws.Progress.Slots() {
			line := progress.Line(slot)
			if printed[i] != line {
				printed[i] = line
				fmt.Fprintln(out, line)
			}
		}
	}

	for {
		select {
		case <-cmd.Context().Done():
			return fmt.Errorf("stopped following job %s: %w", jobID, cmd.Context().Err())
		case e := <-events:
			switch e.Kind {
			case workspace.EventProgress:
				printSlots()
			case workspace.EventJobCompleted:
				printSlots()
				fmt.Fprintln(out, e.Text)
				if snap := e.Snapshot; snap != nil {
					if snap.Statistics != nil {
						fmt.Fprintln(out, stats.Plain(*snap.Statistics))
					}
					if snap.SearchHistoryID != nil {
						fmt.Fprintf(out, "Search history id: %d\n", *snap.SearchHistoryID)
					}
				}
				return nil
			case workspace.EventJobFailed:
				printSlots()
				return e.Err
			case workspace.EventPollTimeout:
				return errors.New(e.Text)
			}
		}
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient(opts)
			if err != nil {
				return err
			}
			snap, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s: %s\n", args[0], snap.Status)
			view := progress.NewView(progress.DefaultStages())
			view.Apply(snap)
			for _, slot := range view.Slots() {
				fmt.Fprintln(out, progress.Line(slot))
			}
			if snap.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", rows.SafeLine(snap.ErrorMessage))
			}
			if snap.Statistics != nil {
				fmt.Fprintln(out, stats.Plain(*snap.Statistics))
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}
			p, err := client.History(cmd.Context(), page)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(p.History) == 0 {
				fmt.Fprintln(out, history.EmptyHistory)
				return nil
			}
			lines := make([][]string, 0, len(p.History))
			for _, rec := range p.History {
				r := history.RowOf(rec, dateLayout(cfg))
				lines = append(lines, []string{strconv.FormatInt(r.ID, 10), r.Date, r.Feeds, r.Criteria, r.Stats})
			}
			printTable(out, []column{
				{"id", 5}, {"date", 16}, {"feeds", 30}, {"criteria", 24}, {"results", 0},
			}, lines)
			fmt.Fprintf(out, "\npage %d of %d (%d runs)\n", p.Page, p.TotalPages, p.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page to show")
	return cmd
}

func newArticlesCmd(opts *rootOptions) *cobra.Command {
	var (
		historyID   int64
		withContent bool
	)
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List the articles of a run, or every stored article",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}

			var articles []api.Article
			flags := rows.Flags{DateFormat: dateLayout(cfg)}
			if historyID > 0 {
				flags.Scope = state.ScopeHistory
				articles, err = client.HistoryArticles(cmd.Context(), historyID)
			} else {
				flags.Scope = state.ScopeLive
				flags.HasSummary = true
				articles, err = client.Results(cmd.Context(), nil)
			}
			if err != nil {
				return err
			}

			if len(articles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), table.PlaceholderNoRows)
				return nil
			}
			printRowSets(cmd.OutOrStdout(), rows.BuildAll(articles, flags), withContent)
			return nil
		},
	}
	cmd.Flags().Int64Var(&historyID, "history", 0, "Search history id")
	cmd.Flags().BoolVar(&withContent, "content", false, "Include article content")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		historyID int64
		threshold float64
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic search over stored articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Search.Threshold
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Search.Limit
			}
			query, err := validation.Search(args[0], threshold, limit)
			if err != nil {
				return err
			}

			req := api.SearchRequest{Query: query, Threshold: threshold, Limit: limit}
			scope := state.ScopeLive
			if historyID > 0 {
				req.SearchHistoryID = &historyID
				scope = state.ScopeHistory
			}
			res, err := client.SemanticSearch(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			header := table.SearchHeader{Found: res.Found, Query: query, Threshold: threshold}
			if len(res.Articles) == 0 {
				fmt.Fprintln(out, header.NothingFound())
				return nil
			}
			fmt.Fprintln(out, header.String())
			fmt.Fprintln(out)
			printRowSets(out, rows.BuildAll(res.Articles, rows.Flags{
				HasSummary:    scope == state.ScopeLive,
				HasSimilarity: true,
				Scope:         scope,
				DateFormat:    dateLayout(cfg),
			}), false)
			return nil
		},
	}
	cmd.Flags().Int64Var(&historyID, "history", 0, "Restrict the search to one run")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity threshold (0-1, defaults to [search] threshold)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (defaults to [search] limit)")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <history-id>",
		Short: "Delete a search history record and its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return errNotConfirmed
			}
			_, client, err := newClient(opts)
			if err != nil {
				return err
			}
			msg, err := client.DeleteHistory(cmd.Context(), id)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = fmt.Sprintf("Deleted search #%d", id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rows.SafeLine(msg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every article and search history record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}
			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}
			msg, err := client.ClearAll(cmd.Context())
			if err != nil {
				return err
			}

			// The cached session points at records that no longer exist.
			if store, err := openStore(cfg); err == nil {
				if err := store.ClearSession(); err != nil {
					debuglog.Warnf("clearing session cache: %v", err)
				}
				store.Close()
			}
			if msg == "" {
				msg = "Database cleared"
			}
			fmt.Fprintln(cmd.OutOrStdout(), rows.SafeLine(msg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the database")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show general statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}
			st, err := client.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			printStatistics(cmd.OutOrStdout(), *st, dateLayout(cfg))
			return nil
		},
	}
}

func printStatistics(w io.Writer, st api.Statistics, layout string) {
	for _, t := range stats.GeneralTiles(st) {
		fmt.Fprintf(w, "%s %d\n", cell(t.Label+":", 22), t.Value)
	}

	fmt.Fprintln(w, "\nSources")
	if len(st.Sources) == 0 {
		fmt.Fprintln(w, "  "+history.NoData)
	}
	for _, s := range st.Sources {
		name := s.Name
		if name == "" {
			name = rows.UnknownSource
		}
		fmt.Fprintf(w, "  %s %d\n", cell(name, 40), s.Count)
	}

	fmt.Fprintln(w, "\nRecent searches")
	if len(st.LastSearches) == 0 {
		fmt.Fprintln(w, "  "+history.NoData)
	}
	recent := st.LastSearches
	if len(recent) > stats.MaxRecentSearches {
		recent = recent[:stats.MaxRecentSearches]
	}
	for _, s := range recent {
		fmt.Fprintf(w, "  %s %d articles\n", cell(stats.SearchDate(s.Date, layout), 18), s.Count)
	}
}

func newCheckFeedsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-feeds [url...]",
		Short: "Fetch and parse feeds before submitting them",
		Long:  "Fetch and parse every feed URL. Without arguments the feeds of [job] rss_feeds are checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			inputs := args
			if len(inputs) == 0 {
				inputs = cfg.Job.RSSFeeds
			}
			if len(inputs) == 0 {
				return &api.ValidationError{Field: "rss_feeds", Message: "no feeds given and none configured"}
			}

			checker := feed.NewChecker(cfg,
				feed.WithRegistry(registry(cfg)),
				feed.WithValidator(feedValidator(opts)),
			)
			results := checker.CheckAll(cmd.Context(), inputs)
			out := cmd.OutOrStdout()
			for _, r := range results {
				mark := "✓"
				if !r.OK() {
					mark = "✗"
				}
				fmt.Fprintf(out, "%s %s\n", mark, rows.SafeLine(r.String()))
			}
			if failed := feed.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d feeds failed", len(failed), len(results))
			}
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		historyID int64
		format    string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the articles of a run as HTML or markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if historyID < 1 {
				return &api.ValidationError{Field: "history", Message: "--history is required"}
			}
			var export func(io.Writer, rows.Document) error
			switch format {
			case "html":
				export = rows.ExportHTML
			case "markdown", "md":
				export = rows.ExportMarkdown
			default:
				return &api.ValidationError{Field: "format", Message: fmt.Sprintf("unknown format %q (html or markdown)", format)}
			}

			cfg, client, err := newClient(opts)
			if err != nil {
				return err
			}
			articles, err := client.HistoryArticles(cmd.Context(), historyID)
			if err != nil {
				return err
			}
			doc := rows.Document{
				Title:    fmt.Sprintf("Search #%d", historyID),
				Subtitle: fmt.Sprintf("%d articles", len(articles)),
				Sets: rows.BuildAll(articles, rows.Flags{
					Scope:      state.ScopeHistory,
					DateFormat: dateLayout(cfg),
				}),
			}

			if output == "" {
				return export(cmd.OutOrStdout(), doc)
			}
			path, err := validation.NewPathChecker().OutputFile(output)
			if err != nil {
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			if err := export(f, doc); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d articles to %s\n", len(articles), path)
			return nil
		},
	}
	cmd.Flags().Int64Var(&historyID, "history", 0, "Search history id")
	cmd.Flags().StringVar(&format, "format", "html", "Output format: html or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "newsroom", "config.toml")
}

func newGenerateConfigCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = defaultConfigPath()
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default ~/.config/newsroom/config.toml)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	var banner bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if banner {
				tui.ShowBanner(Version)
				return
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", tui.AppName, Version)
			fmt.Fprintln(out, "RSS classification pipeline client")
			fmt.Fprintln(out, "github.com/pders01/newsroom")
		},
	}
	cmd.Flags().BoolVar(&banner, "banner", false, "Show the banner")
	return cmd
}
