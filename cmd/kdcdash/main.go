package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devports/kdcdash/pkg/cli"
	"github.com/devports/kdcdash/pkg/config"
	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/process"
)

var (
	hostFlag     string
	configFlag   string
	logLevelFlag string
	outputFlag   string
	waitFlag     bool
	yesFlag      bool
)

var app *cli.App

var rootCmd = &cobra.Command{
	Use:   "kdcdash",
	Short: "Operator dashboard for the KDC process fleet",
	Long: `kdcdash shows live status for the projects run by pmctl and the ports
claimed in the port registry, and issues start/stop/restart/sync commands.

Without a subcommand it opens the interactive dashboard when attached to a
terminal, and prints the project list otherwise.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return app.DashboardCmd(cmd.Context())
		}
		return app.ListCmd(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&hostFlag, "host", "", "backend host (default from config, localhost)")
	pf.StringVar(&configFlag, "config", "", "config file (default ~/.config/kdcdash/config.toml)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error, off")
	pf.StringVarP(&outputFlag, "output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List tracked projects",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.ListCmd(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "ports",
			Short: "Show the port registry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.PortsCmd(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "git",
			Short: "Show repository state for every project",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.GitCmd(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status <project>",
			Short: "Show one project in detail",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.StatusCmd(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check that pmctl and the port registry answer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.DoctorCmd(cmd.Context())
			},
		},
	)

	for _, verb := range models.Verbs {
		rootCmd.AddCommand(newActionCmd(verb))
	}
	rootCmd.AddCommand(newAddCmd(), newRemoveCmd())
	for _, op := range []process.BulkOp{process.BulkStartAll, process.BulkStopAll, process.BulkShutdown} {
		rootCmd.AddCommand(newBulkCmd(op))
	}
}

func newActionCmd(verb models.Verb) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(verb) + " <project>",
		Short: fmt.Sprintf("Issue %s for a project", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ActionCmd(cmd.Context(), args[0], verb, waitFlag)
		},
	}
	cmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "wait until the project settles")
	return cmd
}

func newAddCmd() *cobra.Command {
	var np models.NewProject
	var category, startScript, pm2Name string
	cmd := &cobra.Command{
		Use:   "add <name> --path <dir>",
		Short: "Register a new project with pmctl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			np.Name = args[0]
			np.Category = models.Category(category)
			if startScript != "" {
				np.StartScript = &startScript
			}
			if pm2Name != "" {
				np.PM2Name = &pm2Name
			}
			return app.AddCmd(cmd.Context(), np)
		},
	}
	f := cmd.Flags()
	f.StringVar(&np.Path, "path", "", "project directory (required)")
	f.StringVar(&np.Description, "description", "", "what the project does")
	f.StringVar(&np.Tech, "tech", "", "technology label (detected from the path when empty)")
	f.StringVar(&category, "category", string(models.CategoryAgent), "agent or infra")
	f.StringVar(&startScript, "start-script", "", "command pmctl runs, e.g. \"node launch.js\"")
	f.StringVar(&pm2Name, "pm2-name", "", "pm2 process name (empty = not managed by pm2)")
	f.StringVar(&np.ServiceName, "service-name", "", "name in the port registry")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <project>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a project from pmctl",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirmable(); err != nil {
				return err
			}
			return app.RemoveCmd(cmd.Context(), args[0], yesFlag)
		},
	}
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newBulkCmd(op process.BulkOp) *cobra.Command {
	short := map[process.BulkOp]string{
		process.BulkStartAll: "Start every project",
		process.BulkStopAll:  "Stop every project",
		process.BulkShutdown: "Shut down pm2 and everything it runs",
	}[op]
	cmd := &cobra.Command{
		Use:   string(op),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirmable(); err != nil {
				return err
			}
			return app.BulkCmd(cmd.Context(), op, yesFlag)
		},
	}
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// requireConfirmable refuses destructive commands that could never be confirmed
func requireConfirmable() error {
	if yesFlag || term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return errors.New("stdin is not a terminal; pass --yes to confirm")
}

// setup loads configuration (file, then env, then flags), starts the file
// logger and builds the app
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	paths, err := models.GetConfigPaths()
	if err != nil {
		return fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = os.Getenv(config.EnvConfig)
	}
	if cfgPath == "" {
		cfgPath = paths.ConfigFile
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	config.ApplyEnv(&cfg)
	if cmd.Flags().Changed("host") {
		cfg.Host = hostFlag
	}
	if logLevelFlag != "" {
		lvl, ok := log.ParseLevel(logLevelFlag)
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevelFlag)
		}
		cfg.LogLevel = lvl
	}
	if cfg.LogFile == "" {
		cfg.LogFile = paths.LogFile
	}
	if err := log.Init(log.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (logging to stderr)\n", err)
	}
	log.Debug("config loaded", "path", cfgPath, "host", cfg.Host,
		"registry", cfg.RegistryURL(), "pmctl", cfg.PMCtlURL())

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	app, err = cli.NewApp(cfg)
	if err != nil {
		return err
	}
	app.SetFormat(format)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
