package view

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devports/kdcdash/pkg/models"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Online, Classify("running"))
	for _, s := range []string{"stopped", "errored", "launching", ""} {
		assert.Equal(t, Offline, Classify(s), s)
	}
}

func TestControlsFor(t *testing.T) {
	t.Parallel()

	running := models.Project{Status: models.StatusRunning}
	stopped := models.Project{Status: models.StatusStopped}
	dirty := models.Project{Status: models.StatusStopped, Git: &models.GitInfo{IsRepo: true, IsDirty: true}}
	notRepo := models.Project{Status: models.StatusStopped, Git: &models.GitInfo{IsRepo: false, IsDirty: true}}
	busy := Busy{Verb: models.VerbRestart, Active: true}

	tests := []struct {
		name string
		p    models.Project
		busy Busy
		want Controls
	}{
		{"running idle", running, Busy{}, Controls{Start: false, Stop: true, Restart: true}},
		{"stopped idle", stopped, Busy{}, Controls{Start: true, Stop: false, Restart: true}},
		{"running busy", running, busy, Controls{}},
		{"stopped busy", stopped, busy, Controls{}},
		{"dirty repo", dirty, Busy{}, Controls{Start: true, Restart: true, Sync: true}},
		{"dirty repo busy", dirty, busy, Controls{}},
		{"dirty flag without repo", notRepo, Busy{}, Controls{Start: true, Restart: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ControlsFor(tt.p, tt.busy))
		})
	}
}

func TestCardForStoppingState(t *testing.T) {
	t.Parallel()

	p := models.Project{
		ID: "api", Name: "API", Status: models.StatusRunning,
		Ports: []int{8080, 8081}, OpenPorts: []int{8081},
		CPUPercent: 2.5, MemoryMB: 64,
	}

	idle := CardFor(p, Busy{}, "kdc.lan")
	assert.Equal(t, StateOnline, idle.State)
	assert.Equal(t, "http://kdc.lan:8081", idle.URL)
	assert.Equal(t, []PortTag{{8080, false}, {8081, true}}, idle.Ports)
	assert.Equal(t, "2.5%", idle.CPU)
	assert.Equal(t, "64 MiB", idle.Memory)
	assert.Equal(t, "no description", idle.Description)

	stopping := CardFor(p, Busy{Verb: models.VerbStop, Active: true}, "kdc.lan")
	assert.Equal(t, StateStopping, stopping.State)
	assert.Empty(t, stopping.URL)

	restarting := CardFor(p, Busy{Verb: models.VerbRestart, Active: true}, "kdc.lan")
	assert.Equal(t, StateOnline, restarting.State)

	p.Status = models.StatusStopped
	offline := CardFor(p, Busy{Verb: models.VerbStop, Active: true}, "kdc.lan")
	assert.Equal(t, StateOffline, offline.State, "stop on an offline project is not shown as stopping")
	assert.Equal(t, "—", offline.CPU)
}

func TestCardBackgroundLabel(t *testing.T) {
	t.Parallel()

	loop := CardFor(models.Project{ID: "poller", Status: models.StatusRunning, Tech: "Bash"}, Busy{}, "")
	assert.Equal(t, "bg bash loop", loop.Background)
	assert.Equal(t, "poller", loop.Name)

	worker := CardFor(models.Project{ID: "w", Status: models.StatusRunning, Tech: "Python"}, Busy{}, "")
	assert.Equal(t, "background", worker.Background)

	idle := CardFor(models.Project{ID: "w", Status: models.StatusStopped, Tech: "Python"}, Busy{}, "")
	assert.Empty(t, idle.Background)
	assert.Equal(t, "—", idle.Memory)
}

func TestPartitionIsDisjointCover(t *testing.T) {
	t.Parallel()

	categories := []models.Category{models.CategoryAgent, models.CategoryInfra, models.CategoryNone, "tooling", "AGENT"}
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := rng.Intn(20)
		projects := make([]models.Project, 0, n)
		for i := 0; i < n; i++ {
			projects = append(projects, models.Project{
				ID:       fmt.Sprintf("p%d", i),
				Category: categories[rng.Intn(len(categories))],
			})
		}

		g := Partition(projects)
		require.Equal(t, n, g.Len())
		seen := make(map[string]int)
		for _, bucket := range [][]models.Project{g.Agents, g.Infra, g.Uncategorized} {
			for _, p := range bucket {
				seen[p.ID]++
			}
		}
		for _, p := range projects {
			assert.Equal(t, 1, seen[p.ID], "project %s must be in exactly one bucket", p.ID)
		}
		for _, p := range g.Agents {
			assert.Equal(t, models.CategoryAgent, p.Category)
		}
		for _, p := range g.Infra {
			assert.Equal(t, models.CategoryInfra, p.Category)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HealthConnecting, Health(false, nil))
	assert.Equal(t, HealthOK, Health(true, nil))
	assert.Equal(t, HealthError, Health(true, errors.New("down")))
	assert.Equal(t, HealthError, Health(false, errors.New("down")))
	assert.Equal(t, "connection error", HealthLabel(HealthError))
}

func TestPortRowsAndConflicts(t *testing.T) {
	t.Parallel()

	entries := []models.PortEntry{
		{Service: "web", Port: 5173, InUse: true},
		{Service: "grafana", Port: 3000},
		{Service: "api", Port: 3000, InUse: true},
	}
	rows := PortRows(entries)
	require.Len(t, rows, 3)
	assert.Equal(t, "api", rows[0].Service)
	assert.True(t, rows[0].Conflict)
	assert.Equal(t, "grafana", rows[1].Service)
	assert.Equal(t, "IDLE", rows[1].StatusLabel())
	assert.False(t, rows[2].Conflict)
	assert.Equal(t, "ACTIVE", rows[2].StatusLabel())

	assert.Equal(t, map[int][]string{3000: {"api", "grafana"}}, PortConflicts(entries))
}

func TestGitRows(t *testing.T) {
	t.Parallel()

	projects := []models.Project{
		{ID: "a", Name: "A", Git: &models.GitInfo{IsRepo: true, IsDirty: true, Branch: "main", StatusSummary: " M x.go"}},
		{ID: "b", Name: "B", Git: &models.GitInfo{IsRepo: true, Remote: "git@github.com:kdc/b.git"}},
		{ID: "c"},
	}
	rows := GitRows(projects, map[string]models.Verb{"a": models.VerbSync})
	require.Len(t, rows, 3)

	assert.Equal(t, "DIRTY", rows[0].Badge())
	assert.True(t, rows[0].Syncing)
	assert.False(t, rows[0].CanSync, "busy project cannot sync again")
	assert.Equal(t, " M x.go", rows[0].Summary)

	assert.Equal(t, "CLEAN", rows[1].Badge())
	assert.Equal(t, "—", rows[1].Branch)
	assert.Empty(t, rows[1].Summary)

	assert.Equal(t, "NO REPO", rows[2].Badge())
	assert.Equal(t, "no remote", rows[2].Remote)
	assert.Equal(t, "c", rows[2].Name)
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", SystemLine(nil))
	assert.Equal(t, "CPU 12.5%  RAM 61%", SystemLine(&models.SystemStats{CPUTotal: 12.5, Memory: models.MemoryStats{Percent: 61}}))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never updated", UpdatedLabel(time.Time{}, now))
	assert.Equal(t, "updated 3 seconds ago", UpdatedLabel(now.Add(-3*time.Second), now))
}
