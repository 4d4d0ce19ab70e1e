package models

import (
	"fmt"
	"strings"
)

// Category groups projects on the dashboard
type Category string

const (
	CategoryAgent Category = "agent"
	CategoryInfra Category = "infra"
	CategoryNone  Category = ""
)

// Status values reported by the process manager. Anything else is passed through as-is.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Verb is a lifecycle command that can be issued against one project
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
	VerbSync    Verb = "sync"
)

// Verbs lists every per-project lifecycle command
var Verbs = []Verb{VerbStart, VerbStop, VerbRestart, VerbSync}

// ParseVerb validates a verb name
func ParseVerb(raw string) (Verb, error) {
	v := Verb(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Verbs {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown action %q (valid: start, stop, restart, sync)", raw)
}

// GitInfo is the source-control facet of a project
type GitInfo struct {
	IsRepo        bool   `json:"is_repo" yaml:"is_repo"`
	Branch        string `json:"branch,omitempty" yaml:"branch,omitempty"`
	IsDirty       bool   `json:"is_dirty,omitempty" yaml:"is_dirty,omitempty"`
	Remote        string `json:"remote,omitempty" yaml:"remote,omitempty"`
	StatusSummary string `json:"status_summary,omitempty" yaml:"status_summary,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Project is one tracked process as reported by the process manager.
// ID is the key of the project map and is never part of the JSON body.
type Project struct {
	ID          string   `json:"-" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Tech        string   `json:"tech" yaml:"tech"`
	Path        string   `json:"path" yaml:"path"`
	Status      string   `json:"status" yaml:"status"`
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`
	Ports       []int    `json:"ports" yaml:"ports"`
	OpenPorts   []int    `json:"open_ports" yaml:"open_ports"`
	MemoryMB    float64  `json:"memory_mb" yaml:"memory_mb"`
	CPUPercent  float64  `json:"cpu_percent" yaml:"cpu_percent"`
	DiskUsage   string   `json:"disk_usage" yaml:"disk_usage"`
	TokenUsage  float64  `json:"token_usage,omitempty" yaml:"token_usage,omitempty"`
	Relations   []string `json:"relations,omitempty" yaml:"relations,omitempty"`
	Services    []string `json:"services,omitempty" yaml:"services,omitempty"`
	Git         *GitInfo `json:"git,omitempty" yaml:"git,omitempty"`
}

// IsPortOpen reports whether a declared port is also observed open
func (p Project) IsPortOpen(port int) bool {
	for _, open := range p.OpenPorts {
		if open == port {
			return true
		}
	}
	return false
}

// IsDirtyRepo reports whether the project is a git repository with uncommitted changes
func (p Project) IsDirtyRepo() bool {
	return p.Git != nil && p.Git.IsRepo && p.Git.IsDirty
}

// PortEntry is one allocation in the port registry, keyed by service name
type PortEntry struct {
	Service     string `json:"-" yaml:"service"`
	Port        int    `json:"port" yaml:"port"`
	Project     string `json:"project" yaml:"project"`
	Description string `json:"description" yaml:"description"`
	InUse       bool   `json:"in_use" yaml:"in_use"`
}

// MemoryStats is the memory part of the system stats payload
type MemoryStats struct {
	Percent float64 `json:"percent" yaml:"percent"`
}

// SystemStats holds host-wide gauges from the process manager
type SystemStats struct {
	CPUTotal float64     `json:"cpu_total" yaml:"cpu_total"`
	Memory   MemoryStats `json:"memory" yaml:"memory"`
}

// NewProject is the body of a create-project request
type NewProject struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Tech        string   `json:"tech"`
	Category    Category `json:"category"`
	StartScript *string  `json:"start_script"`
	PM2Name     *string  `json:"pm2_name"`
	ServiceName string   `json:"serviceName"`
}

// ActionResult is the {success, message} body returned by create and sync commands
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
