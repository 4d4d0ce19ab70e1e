package fetch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/store"
)

// ErrProjectsUnavailable marks a failed read of the project collection
var ErrProjectsUnavailable = errors.New("projects unavailable")

// ProjectSource is the process manager side of a snapshot
type ProjectSource interface {
	Projects(ctx context.Context) (map[string]models.Project, error)
	SystemStats(ctx context.Context) (*models.SystemStats, error)
}

// PortSource is the port registry side of a snapshot
type PortSource interface {
	Ports(ctx context.Context) (map[string]models.PortEntry, error)
}

// Report carries the outcome of each read in one snapshot
type Report struct {
	Projects error
	Ports    error
	Stats    error
}

// OK reports whether every read succeeded
func (r Report) OK() bool {
	return r.Projects == nil && r.Ports == nil && r.Stats == nil
}

// Fetcher reads a snapshot from both backends into a store
type Fetcher struct {
	projects ProjectSource
	ports    PortSource
	store    *store.Store
}

// New creates a fetcher writing into st
func New(projects ProjectSource, ports PortSource, st *store.Store) *Fetcher {
	return &Fetcher{projects: projects, ports: ports, store: st}
}

// Store returns the store this fetcher writes into
func (f *Fetcher) Store() *store.Store {
	return f.store
}

// Fetch performs the three reads concurrently. Each resource is replaced on
// success and left untouched on failure. Only the project read drives the
// store error flag.
func (f *Fetcher) Fetch(ctx context.Context) Report {
	var report Report
	var g errgroup.Group

	g.Go(func() error {
		ports, err := f.ports.Ports(ctx)
		if err != nil {
			report.Ports = err
			log.Debug("port registry read failed", "error", err)
			return nil
		}
		f.store.ReplacePorts(ports)
		return nil
	})
	g.Go(func() error {
		stats, err := f.projects.SystemStats(ctx)
		if err != nil {
			report.Stats = err
			log.Debug("system stats read failed", "error", err)
			return nil
		}
		f.store.ReplaceStats(*stats)
		return nil
	})
	g.Go(func() error {
		projects, err := f.projects.Projects(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProjectsUnavailable, err)
		}
		f.store.ReplaceProjects(projects)
		return nil
	})

	report.Projects = g.Wait()
	f.store.SetError(report.Projects)
	if report.Projects != nil {
		log.Warn("project read failed", "error", report.Projects)
	}
	return report
}

// Refresh is Fetch reduced to the load-bearing outcome
func (f *Fetcher) Refresh(ctx context.Context) error {
	return f.Fetch(ctx).Projects
}
