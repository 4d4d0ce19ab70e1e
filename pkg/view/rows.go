package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/devports/kdcdash/pkg/models"
)

// PortRow is one line of the port registry table
type PortRow struct {
	Port        int    `json:"port" yaml:"port"`
	Service     string `json:"service" yaml:"service"`
	Project     string `json:"project" yaml:"project"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool   `json:"active" yaml:"active"`
	Conflict    bool   `json:"conflict,omitempty" yaml:"conflict,omitempty"`
}

// StatusLabel is ACTIVE or IDLE
func (r PortRow) StatusLabel() string {
	if r.Active {
		return "ACTIVE"
	}
	return "IDLE"
}

// PortRows sorts registry entries by port, then service, and flags shared ports
func PortRows(entries []models.PortEntry) []PortRow {
	conflicts := make(map[int]bool)
	for port := range PortConflicts(entries) {
		conflicts[port] = true
	}
	rows := make([]PortRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, PortRow{
			Port:        e.Port,
			Service:     e.Service,
			Project:     e.Project,
			Description: e.Description,
			Active:      e.InUse,
			Conflict:    conflicts[e.Port],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Port != rows[j].Port {
			return rows[i].Port < rows[j].Port
		}
		return rows[i].Service < rows[j].Service
	})
	return rows
}

// PortConflicts maps each port claimed by more than one service to the sorted service names
func PortConflicts(entries []models.PortEntry) map[int][]string {
	byPort := make(map[int][]string)
	for _, e := range entries {
		byPort[e.Port] = append(byPort[e.Port], e.Service)
	}
	out := make(map[int][]string)
	for port, services := range byPort {
		if len(services) > 1 {
			sort.Strings(services)
			out[port] = services
		}
	}
	return out
}

// GitRow is one project's source-control facet
type GitRow struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	IsRepo  bool   `json:"is_repo" yaml:"is_repo"`
	Dirty   bool   `json:"dirty" yaml:"dirty"`
	Branch  string `json:"branch" yaml:"branch"`
	Remote  string `json:"remote" yaml:"remote"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	CanSync bool   `json:"can_sync" yaml:"can_sync"`
	Syncing bool   `json:"syncing,omitempty" yaml:"syncing,omitempty"`
}

// Badge is DIRTY, CLEAN or NO REPO
func (r GitRow) Badge() string {
	switch {
	case !r.IsRepo:
		return "NO REPO"
	case r.Dirty:
		return "DIRTY"
	default:
		return "CLEAN"
	}
}

// GitRows projects every project, repo or not, into the git view
func GitRows(projects []models.Project, busy map[string]models.Verb) []GitRow {
	rows := make([]GitRow, 0, len(projects))
	for _, p := range projects {
		b := BusyFrom(busy, p.ID)
		row := GitRow{
			ID:      p.ID,
			Name:    p.Name,
			Branch:  "—",
			Remote:  "no remote",
			CanSync: ControlsFor(p, b).Sync,
			Syncing: b.Active && b.Verb == models.VerbSync,
		}
		if row.Name == "" {
			row.Name = p.ID
		}
		if g := p.Git; g != nil {
			row.IsRepo = g.IsRepo
			row.Dirty = g.IsRepo && g.IsDirty
			row.Error = g.Error
			if g.Branch != "" {
				row.Branch = g.Branch
			}
			if g.Remote != "" {
				row.Remote = g.Remote
			}
			if row.Dirty {
				row.Summary = g.StatusSummary
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatMemory renders a megabyte gauge, or a dash when nothing is reported
func FormatMemory(mb float64) string {
	if mb <= 0 {
		return "—"
	}
	return humanize.IBytes(uint64(mb * 1024 * 1024))
}

// FormatPercent renders a CPU or RAM percentage
func FormatPercent(v float64) string {
	return humanize.FtoaWithDigits(v, 1) + "%"
}

// SystemLine is the header gauge text, empty when stats were never read
func SystemLine(stats *models.SystemStats) string {
	if stats == nil {
		return ""
	}
	return fmt.Sprintf("CPU %s  RAM %s", FormatPercent(stats.CPUTotal), FormatPercent(stats.Memory.Percent))
}

// UpdatedLabel says how long ago the last snapshot landed
func UpdatedLabel(updated, now time.Time) string {
	if updated.IsZero() {
		return "never updated"
	}
	return "updated " + humanize.RelTime(updated, now, "ago", "from now")
}
