package view

import (
	"fmt"
	"strings"

	"github.com/devports/kdcdash/pkg/models"
)

// Liveness is the two-valued classification of a raw status
type Liveness string

const (
	Online  Liveness = "online"
	Offline Liveness = "offline"
)

// CardState is the badge shown on a project card
type CardState string

const (
	StateOnline   CardState = "ONLINE"
	StateOffline  CardState = "OFFLINE"
	StateStopping CardState = "STOPPING"
)

// Classify maps a raw status to online or offline. Only "running" is online.
func Classify(status string) Liveness {
	if status == models.StatusRunning {
		return Online
	}
	return Offline
}

// Busy is the in-flight verb for one project; the zero value means idle
type Busy struct {
	Verb   models.Verb
	Active bool
}

// BusyFrom looks id up in a busy map
func BusyFrom(m map[string]models.Verb, id string) Busy {
	v, ok := m[id]
	return Busy{Verb: v, Active: ok}
}

// Controls says which lifecycle controls are enabled for a project
type Controls struct {
	Start   bool
	Stop    bool
	Restart bool
	Sync    bool
}

// Enabled reports whether verb's control is enabled
func (c Controls) Enabled(verb models.Verb) bool {
	switch verb {
	case models.VerbStart:
		return c.Start
	case models.VerbStop:
		return c.Stop
	case models.VerbRestart:
		return c.Restart
	case models.VerbSync:
		return c.Sync
	default:
		return false
	}
}

// ControlsFor derives control enablement from liveness, busy marker and repo state
func ControlsFor(p models.Project, busy Busy) Controls {
	online := Classify(p.Status) == Online
	return Controls{
		Start:   !online && !busy.Active,
		Stop:    online && !busy.Active,
		Restart: !busy.Active,
		Sync:    p.IsDirtyRepo() && !busy.Active,
	}
}

// Card is everything a project card renders
type Card struct {
	ID          string
	Name        string
	Liveness    Liveness
	State       CardState
	Busy        Busy
	Controls    Controls
	Ports       []PortTag
	Background  string
	Description string
	CPU         string
	Memory      string
	Disk        string
	Tech        string
	Path        string
	URL         string
}

// PortTag is one declared port and whether it was observed open
type PortTag struct {
	Port int
	Open bool
}

func (t PortTag) String() string {
	return fmt.Sprintf(":%d", t.Port)
}

// CardFor projects one store entry into a card. host is used for the open URL.
func CardFor(p models.Project, busy Busy, host string) Card {
	live := Classify(p.Status)
	stopping := busy.Active && busy.Verb == models.VerbStop && live == Online

	c := Card{
		ID:          p.ID,
		Name:        p.Name,
		Liveness:    live,
		Busy:        busy,
		Controls:    ControlsFor(p, busy),
		Description: p.Description,
		CPU:         "—",
		Memory:      FormatMemory(p.MemoryMB),
		Disk:        p.DiskUsage,
		Tech:        p.Tech,
		Path:        p.Path,
	}
	if c.Name == "" {
		c.Name = p.ID
	}
	if strings.TrimSpace(c.Description) == "" {
		c.Description = "no description"
	}
	switch {
	case stopping:
		c.State = StateStopping
	case live == Online:
		c.State = StateOnline
	default:
		c.State = StateOffline
	}
	if p.Status == models.StatusRunning {
		c.CPU = FormatPercent(p.CPUPercent)
	}
	for _, port := range p.Ports {
		c.Ports = append(c.Ports, PortTag{Port: port, Open: p.IsPortOpen(port)})
	}
	if len(p.Ports) == 0 && live == Online {
		c.Background = BackgroundLabel(p.Tech)
	}
	if live == Online && !stopping && len(p.OpenPorts) > 0 {
		c.URL = OpenURL(host, p.OpenPorts[0])
	}
	return c
}

// BackgroundLabel names a running project that declares no ports
func BackgroundLabel(tech string) string {
	if strings.Contains(strings.ToLower(tech), "bash") {
		return "bg bash loop"
	}
	return "background"
}

// OpenURL is the browser address of a project's first open port
func OpenURL(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// Groups is the category partition of the store
type Groups struct {
	Agents        []models.Project
	Infra         []models.Project
	Uncategorized []models.Project
}

// Len is the number of projects across all buckets
func (g Groups) Len() int {
	return len(g.Agents) + len(g.Infra) + len(g.Uncategorized)
}

// Partition buckets projects by category. Unknown or missing categories land
// in Uncategorized, so every project appears in exactly one bucket. Input
// order is kept within each bucket.
func Partition(projects []models.Project) Groups {
	var g Groups
	for _, p := range projects {
		switch p.Category {
		case models.CategoryAgent:
			g.Agents = append(g.Agents, p)
		case models.CategoryInfra:
			g.Infra = append(g.Infra, p)
		default:
			g.Uncategorized = append(g.Uncategorized, p)
		}
	}
	return g
}

// HealthState is the connectivity indicator in the header
type HealthState string

const (
	HealthConnecting HealthState = "connecting"
	HealthError      HealthState = "error"
	HealthOK         HealthState = "ok"
)

// Health derives the indicator from whether a snapshot ever loaded and the
// last project read error
func Health(loaded bool, err error) HealthState {
	switch {
	case err != nil:
		return HealthError
	case !loaded:
		return HealthConnecting
	default:
		return HealthOK
	}
}

// HealthLabel is the text next to the indicator
func HealthLabel(h HealthState) string {
	switch h {
	case HealthConnecting:
		return "connecting..."
	case HealthError:
		return "connection error"
	default:
		return "all systems up"
	}
}
