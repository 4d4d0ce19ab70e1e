package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/devports/kdcdash/pkg/config"
	"github.com/devports/kdcdash/pkg/detect"
	"github.com/devports/kdcdash/pkg/fetch"
	"github.com/devports/kdcdash/pkg/health"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/process"
	"github.com/devports/kdcdash/pkg/reconcile"
	"github.com/devports/kdcdash/pkg/registry"
	"github.com/devports/kdcdash/pkg/store"
	"github.com/devports/kdcdash/pkg/view"
)

// App is the main application handler
type App struct {
	cfg           config.Config
	pm            *process.Client
	registry      *registry.Client
	store         *store.Store
	fetcher       *fetch.Fetcher
	resolver      *detect.ProjectResolver
	healthChecker *health.Checker

	out    io.Writer
	errOut io.Writer
	in     io.Reader
	format OutputFormat

	// sched drives reconcilers; nil means wall-clock timers
	sched reconcile.Scheduler
	// openBrowser is swapped out in tests
	openBrowser func(url string) error
}

// NewApp creates the application for cfg
func NewApp(cfg config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pm := process.NewClient(cfg.PMCtlURL(), cfg.RequestTimeout)
	reg := registry.NewClient(cfg.RegistryURL(), cfg.RequestTimeout)
	st := store.New()

	return &App{
		cfg:           cfg,
		pm:            pm,
		registry:      reg,
		store:         st,
		fetcher:       fetch.New(pm, reg, st),
		resolver:      detect.NewProjectResolver(),
		healthChecker: health.NewChecker(cfg.RequestTimeout),
		out:           os.Stdout,
		errOut:        os.Stderr,
		in:            os.Stdin,
		format:        FormatTable,
		openBrowser:   openInBrowser,
	}, nil
}

// SetOutput redirects command output (mainly for testing)
func (a *App) SetOutput(out, errOut io.Writer) {
	a.out = out
	a.errOut = errOut
}

// SetInput replaces the reader used for confirmation prompts
func (a *App) SetInput(in io.Reader) {
	a.in = in
}

// Config returns the effective configuration
func (a *App) Config() config.Config {
	return a.cfg
}

// newReconciler builds a reconciler over the app's store. A nil scheduler
// means wall-clock timers.
func (a *App) newReconciler(ctx context.Context, sched reconcile.Scheduler) *reconcile.Reconciler {
	return reconcile.New(ctx, reconcile.Config{
		Commands:     a.pm,
		Refresher:    a.fetcher,
		Store:        a.store,
		Scheduler:    sched,
		InitialDelay: a.cfg.Reconcile.InitialDelay,
		Interval:     a.cfg.Reconcile.Interval,
		MaxAttempts:  a.cfg.Reconcile.MaxAttempts,
	})
}

// findProject refreshes and looks up id, accepting a unique case-insensitive
// name match as well
func (a *App) findProject(ctx context.Context, id string) (models.Project, error) {
	if err := a.fetcher.Refresh(ctx); err != nil {
		return models.Project{}, err
	}
	if p, ok := a.store.Get(id); ok {
		return p, nil
	}
	var matches []models.Project
	for _, p := range a.store.All() {
		if strings.EqualFold(p.Name, id) || strings.EqualFold(p.ID, id) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Project{}, fmt.Errorf("project %q not found", id)
	default:
		return models.Project{}, fmt.Errorf("project %q is ambiguous (%d matches)", id, len(matches))
	}
}

func warnPortConflicts(entries []models.PortEntry, out io.Writer) {
	if out == nil {
		return
	}
	conflicts := view.PortConflicts(entries)
	if len(conflicts) == 0 {
		return
	}

	ports := make([]int, 0, len(conflicts))
	for port := range conflicts {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	fmt.Fprintln(out, "Warning: port registry has services sharing a port.")
	fmt.Fprintln(out, "Only one of them can bind it at a time. Reassign one through the registry.")
	for _, port := range ports {
		fmt.Fprintf(out, "  - :%d (%s)\n", port, strings.Join(conflicts[port], ", "))
	}
}

func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return fmt.Errorf("no browser opener found (xdg-open missing)")
		}
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
