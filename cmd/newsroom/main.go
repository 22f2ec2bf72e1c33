package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/plugins/user"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/tui"
	"github.com/pders01/newsroom/internal/validation"
	"github.com/pders01/newsroom/internal/workspace"
)

// Version is the version of the application, set at build time
var Version = "dev"

// pluginTimeout bounds feed URL rewriting when no HTTP timeout is configured.
const pluginTimeout = 15 * time.Second

type rootOptions struct {
	configPath string
	debug      bool
	allowLocal bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	debuglog.Close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "newsroom",
		Short:         "Terminal client for the RSS classification pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Write debug logs to the log file")
	root.PersistentFlags().BoolVar(&opts.allowLocal, "allow-local", false, "Allow feeds on localhost and private networks")

	root.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newArticlesCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
		newStatsCmd(opts),
		newCheckFeedsCmd(opts),
		newExportCmd(opts),
		newGenerateConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration and sets up logging and colors.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, err
	}
	tui.ApplyColors(cfg.UI.Colors)
	return cfg, nil
}

func newClient(opts *rootOptions) (*config.Config, *api.Client, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func registry(cfg *config.Config) *plugins.Registry {
	timeout := cfg.Backend.HTTPTimeout
	if timeout <= 0 {
		timeout = pluginTimeout
	}
	return user.NewDefaultRegistry(timeout)
}

func feedValidator(opts *rootOptions) *validation.FeedURLValidator {
	if opts.allowLocal {
		return validation.NewPermissiveFeedURLValidator()
	}
	return validation.NewFeedURLValidator()
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	path, err := validation.NewPathChecker().SessionDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return storage.NewStore(path, cfg.Database.Timeout)
}

// session is a workspace with its session cache. close releases both.
type session struct {
	cfg   *config.Config
	ws    *workspace.Workspace
	store *storage.Store
}

func openSession(opts *rootOptions) (*session, error) {
	cfg, client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	ws := workspace.New(cfg, client,
		workspace.WithStore(store),
		workspace.WithRegistry(registry(cfg)),
		workspace.WithValidator(feedValidator(opts)),
	)
	return &session{cfg: cfg, ws: ws, store: store}, nil
}

func (s *session) close() {
	s.ws.Close()
	if err := s.store.Close(); err != nil {
		debuglog.Warnf("closing session cache: %v", err)
	}
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	p := tea.NewProgram(tui.NewApp(s.ws), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}
