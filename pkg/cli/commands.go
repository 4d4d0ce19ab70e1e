package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/devports/kdcdash/pkg/detect"
	"github.com/devports/kdcdash/pkg/health"
	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/process"
	"github.com/devports/kdcdash/pkg/reconcile"
	"github.com/devports/kdcdash/pkg/view"
)

// ListCmd handles the 'ls' command
func (a *App) ListCmd(ctx context.Context) error {
	report := a.fetcher.Fetch(ctx)
	if report.Projects != nil {
		return report.Projects
	}

	projects := a.store.All()
	return a.emit(projects, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tName\tCategory\tStatus\tPorts\tCPU\tMemory\tTech")
		for _, p := range projects {
			fmt.Fprintln(w, a.formatProjectRow(p))
		}
	})
}

// formatProjectRow formats a project as a table row
func (a *App) formatProjectRow(p models.Project) string {
	card := view.CardFor(p, view.Busy{}, a.cfg.Host)
	category := string(p.Category)
	if category == "" {
		category = "-"
	}
	ports := "-"
	if len(card.Ports) > 0 {
		parts := make([]string, 0, len(card.Ports))
		for _, tag := range card.Ports {
			s := tag.String()
			if tag.Open {
				s += "*"
			}
			parts = append(parts, s)
		}
		ports = strings.Join(parts, ",")
	} else if card.Background != "" {
		ports = card.Background
	}
	tech := p.Tech
	if tech == "" {
		tech = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s",
		p.ID, card.Name, category, card.State, ports, card.CPU, card.Memory, tech)
}

// PortsCmd handles the 'ports' command
func (a *App) PortsCmd(ctx context.Context) error {
	report := a.fetcher.Fetch(ctx)
	if report.Ports != nil {
		return fmt.Errorf("failed to read port registry: %w", report.Ports)
	}

	entries := a.store.Ports()
	warnPortConflicts(entries, a.errOut)
	rows := view.PortRows(entries)
	return a.emit(rows, func(w io.Writer) {
		fmt.Fprintln(w, "Port\tService\tProject\tStatus\tDescription")
		for _, r := range rows {
			port := fmt.Sprintf("%d", r.Port)
			if r.Conflict {
				port += "!"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", port, r.Service, dashIfEmpty(r.Project), r.StatusLabel(), dashIfEmpty(r.Description))
		}
	})
}

// GitCmd handles the 'git' command
func (a *App) GitCmd(ctx context.Context) error {
	if err := a.fetcher.Refresh(ctx); err != nil {
		return err
	}

	rows := view.GitRows(a.store.All(), nil)
	return a.emit(rows, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tRepo\tBranch\tRemote\tChanges")
		for _, r := range rows {
			changes := "-"
			if r.Error != "" {
				changes = r.Error
			} else if r.Summary != "" {
				changes = r.Summary
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Badge(), r.Branch, r.Remote, changes)
		}
	})
}

type projectStatus struct {
	Project models.Project      `json:"project" yaml:"project"`
	Health  *health.HealthCheck `json:"health,omitempty" yaml:"health,omitempty"`
}

// StatusCmd shows one project in detail, probing its first open port
func (a *App) StatusCmd(ctx context.Context, identifier string) error {
	p, err := a.findProject(ctx, identifier)
	if err != nil {
		return err
	}

	status := projectStatus{Project: p}
	if len(p.OpenPorts) > 0 {
		status.Health = a.healthChecker.Check(ctx, a.cfg.Host, p.OpenPorts[0])
	}

	if a.format != FormatTable {
		return a.emit(status, nil)
	}
	return a.printProjectStatus(status)
}

func (a *App) printProjectStatus(s projectStatus) error {
	p := s.Project
	card := view.CardFor(p, view.Busy{}, a.cfg.Host)
	out := a.out

	fmt.Fprintf(out, "Project: %s (%s)\n", card.Name, p.ID)
	fmt.Fprintln(out, "=======================================")
	fmt.Fprintf(out, "Status:      %s\n", card.State)
	fmt.Fprintf(out, "Description: %s\n", card.Description)
	fmt.Fprintf(out, "Category:    %s\n", dashIfEmpty(string(p.Category)))
	fmt.Fprintf(out, "Tech:        %s\n", dashIfEmpty(p.Tech))
	fmt.Fprintf(out, "Path:        %s\n", dashIfEmpty(p.Path))
	fmt.Fprintf(out, "CPU:         %s\n", card.CPU)
	fmt.Fprintf(out, "Memory:      %s\n", card.Memory)
	fmt.Fprintf(out, "Disk:        %s\n", dashIfEmpty(p.DiskUsage))
	if card.URL != "" {
		fmt.Fprintf(out, "URL:         %s\n", card.URL)
	}

	if len(card.Ports) > 0 {
		fmt.Fprintln(out, "\nPorts:")
		fmt.Fprintln(out, "=======================================")
		for _, tag := range card.Ports {
			state := "closed"
			if tag.Open {
				state = "open"
			}
			fmt.Fprintf(out, "%-8s %s\n", tag.String(), state)
		}
	} else if card.Background != "" {
		fmt.Fprintf(out, "\nNo declared ports (%s)\n", card.Background)
	}

	if g := p.Git; g != nil && g.IsRepo {
		fmt.Fprintln(out, "\nGit:")
		fmt.Fprintln(out, "=======================================")
		fmt.Fprintf(out, "Branch:  %s\n", dashIfEmpty(g.Branch))
		fmt.Fprintf(out, "Remote:  %s\n", dashIfEmpty(g.Remote))
		if g.IsDirty {
			fmt.Fprintf(out, "Changes: %s\n", dashIfEmpty(g.StatusSummary))
		} else {
			fmt.Fprintln(out, "Changes: clean")
		}
	}

	if s.Health != nil {
		fmt.Fprintln(out, "\nHealth:")
		fmt.Fprintln(out, "=======================================")
		fmt.Fprintf(out, "%s %s %s\n", health.StatusIcon(s.Health.Status), s.Health.Target, s.Health.Message)
	}
	return nil
}

// ActionCmd issues start, stop, restart or sync for one project. With wait it
// follows the convergence loop and reports how it ended.
func (a *App) ActionCmd(ctx context.Context, identifier string, verb models.Verb, wait bool) error {
	p, err := a.findProject(ctx, identifier)
	if err != nil {
		return err
	}

	if !wait {
		res, err := a.pm.Action(ctx, p.ID, verb)
		if err != nil {
			return fmt.Errorf("failed to %s %q: %w", verb, p.ID, err)
		}
		if !res.Success {
			return fmt.Errorf("%s of %q failed: %s", verb, p.ID, dashIfEmpty(res.Message))
		}
		fmt.Fprintf(a.out, "Requested %s of %q\n", verb, p.ID)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rec := a.newReconciler(ctx, a.sched)

	events := make(chan reconcile.Event, 16)
	unsubscribe := rec.Subscribe(func(ev reconcile.Event) {
		if ev.ID != p.ID {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	if err := rec.Request(p.ID, verb); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requested %s of %q, waiting for it to settle...\n", verb, p.ID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			done, err := a.reportEvent(ev)
			if done {
				return err
			}
		}
	}
}

// reportEvent prints one reconciler event and says whether the wait is over
func (a *App) reportEvent(ev reconcile.Event) (bool, error) {
	switch ev.Kind {
	case reconcile.EventPolled:
		fmt.Fprintf(a.out, "  check %d: %s\n", ev.Attempt, dashIfEmpty(ev.Status))
	case reconcile.EventSyncResult:
		if !ev.Result.Success {
			return true, fmt.Errorf("sync of %q failed: %s", ev.ID, dashIfEmpty(ev.Result.Message))
		}
		fmt.Fprintf(a.out, "  sync: %s\n", dashIfEmpty(ev.Result.Message))
	case reconcile.EventConverged:
		fmt.Fprintf(a.out, "%s of %q settled after %d check(s)\n", ev.Verb, ev.ID, ev.Attempt)
		return true, nil
	case reconcile.EventExhausted:
		if ev.Verb == models.VerbRestart {
			fmt.Fprintf(a.out, "restart of %q issued; status %s after %d check(s)\n", ev.ID, dashIfEmpty(ev.Status), ev.Attempt)
			return true, nil
		}
		return true, fmt.Errorf("%s of %q did not settle after %d check(s) (status %s)", ev.Verb, ev.ID, ev.Attempt, dashIfEmpty(ev.Status))
	case reconcile.EventAbsent:
		return true, fmt.Errorf("project %q disappeared while waiting for %s", ev.ID, ev.Verb)
	case reconcile.EventCommandFailed:
		return true, fmt.Errorf("failed to %s %q: %w", ev.Verb, ev.ID, ev.Err)
	case reconcile.EventCancelled:
		return true, ev.Err
	}
	return false, nil
}

// AddCmd registers a new project with the process manager
func (a *App) AddCmd(ctx context.Context, np models.NewProject) error {
	np.Name = strings.TrimSpace(np.Name)
	np.Path = strings.TrimSpace(np.Path)
	if np.Name == "" || np.Path == "" {
		return errors.New("name and path are required")
	}
	if np.Category == models.CategoryNone {
		np.Category = models.CategoryAgent
	}
	if np.Category != models.CategoryAgent && np.Category != models.CategoryInfra {
		return fmt.Errorf("unknown category %q (valid: agent, infra)", np.Category)
	}
	if np.StartScript != nil {
		if err := validateStartScript(*np.StartScript); err != nil {
			return err
		}
	}
	if abs, err := filepath.Abs(np.Path); err == nil {
		np.Path = abs
	}
	if strings.TrimSpace(np.Tech) == "" {
		script := ""
		if np.StartScript != nil {
			script = *np.StartScript
		}
		np.Tech = detect.Tech(a.resolver, np.Path, script)
	}

	res, err := a.pm.AddProject(ctx, np)
	if err != nil {
		if errors.Is(err, process.ErrInvalidStartScript) {
			return err
		}
		return fmt.Errorf("failed to add project: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("process manager rejected %q: %s", np.Name, dashIfEmpty(res.Message))
	}

	fmt.Fprintf(a.out, "Project %q registered successfully\n", np.Name)
	if np.Tech != "" {
		fmt.Fprintf(a.out, "Tech: %s\n", np.Tech)
	}
	return nil
}

// RemoveCmd deletes a project after confirmation
func (a *App) RemoveCmd(ctx context.Context, identifier string, yes bool) error {
	p, err := a.findProject(ctx, identifier)
	if err != nil {
		return err
	}
	if !yes && !a.confirm(fmt.Sprintf("Delete project %q?", p.ID)) {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.pm.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete %q: %w", p.ID, err)
	}
	fmt.Fprintf(a.out, "Project %q deleted\n", p.ID)
	return nil
}

// BulkCmd issues start-all, stop-all or shutdown after confirmation
func (a *App) BulkCmd(ctx context.Context, op process.BulkOp, yes bool) error {
	prompt := bulkPrompt(op)
	if !yes && !a.confirm(prompt) {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.pm.Bulk(ctx, op); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	log.Info("bulk command issued", "op", op)
	fmt.Fprintf(a.out, "Requested %s\n", op)
	return nil
}

func bulkPrompt(op process.BulkOp) string {
	switch op {
	case process.BulkStopAll:
		return "Stop every project?"
	case process.BulkStartAll:
		return "Start every project?"
	case process.BulkShutdown:
		return "Shut down the process manager and everything it runs?"
	default:
		return fmt.Sprintf("Run %s?", op)
	}
}

type backendCheck struct {
	Name  string              `json:"name" yaml:"name"`
	Check *health.HealthCheck `json:"check" yaml:"check"`
}

// DoctorCmd checks that both backends answer
func (a *App) DoctorCmd(ctx context.Context) error {
	checks := []backendCheck{
		{Name: "pmctl", Check: a.healthChecker.CheckURL(ctx, a.pm.BaseURL()+"/api/projects")},
		{Name: "port registry", Check: a.healthChecker.CheckURL(ctx, a.registry.BaseURL()+"/ports")},
	}

	err := a.emit(checks, func(w io.Writer) {
		fmt.Fprintln(w, "Backend\tStatus\tTarget\tDetail")
		for _, c := range checks {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", c.Name, health.StatusIcon(c.Check.Status), c.Check.Status, c.Check.Target, c.Check.Message)
		}
	})
	if err != nil {
		return err
	}

	var down []string
	for _, c := range checks {
		if c.Check.Status == health.HealthDown || c.Check.Status == health.HealthUnknown {
			down = append(down, c.Name)
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("unreachable: %s", strings.Join(down, ", "))
	}
	return nil
}

// confirm asks a yes/no question on the app's input; anything but y/yes is no
func (a *App) confirm(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
