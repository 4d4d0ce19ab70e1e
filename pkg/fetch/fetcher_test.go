package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devports/kdcdash/pkg/fakepm"
	"github.com/devports/kdcdash/pkg/models"
	"github.com/devports/kdcdash/pkg/process"
	"github.com/devports/kdcdash/pkg/registry"
	"github.com/devports/kdcdash/pkg/store"
)

func newFetcher(t *testing.T) (*fakepm.Stack, *Fetcher) {
	t.Helper()
	st := fakepm.Start(0)
	t.Cleanup(st.Close)
	st.SeedProject("api", models.Project{Name: "api", Status: models.StatusRunning, Category: models.CategoryInfra})
	st.SeedPort("api", models.PortEntry{Port: 8080, Project: "api", InUse: true})
	st.SetStats(&models.SystemStats{CPUTotal: 10, Memory: models.MemoryStats{Percent: 40}})

	f := New(
		process.NewClient(st.PM.URL, time.Second),
		registry.NewClient(st.Registry.URL, time.Second),
		store.New(),
	)
	return st, f
}

func TestFetchPopulatesStore(t *testing.T) {
	t.Parallel()

	_, f := newFetcher(t)
	report := f.Fetch(context.Background())
	require.True(t, report.OK())

	s := f.Store()
	p, ok := s.Get("api")
	require.True(t, ok)
	assert.Equal(t, "api", p.ID)
	require.Len(t, s.Ports(), 1)
	require.NotNil(t, s.Stats())
	assert.NoError(t, s.Err())
}

func TestLoadBearingFailureKeepsProjectsAndSetsError(t *testing.T) {
	t.Parallel()

	st, f := newFetcher(t)
	require.NoError(t, f.Refresh(context.Background()))

	st.FailProjects(true)
	st.Remove("api")
	err := f.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProjectsUnavailable))
	assert.True(t, models.IsStatus(err, http.StatusServiceUnavailable), "status survives the wrap")

	_, ok := f.Store().Get("api")
	assert.True(t, ok, "previously stored project must survive a failed read")
	assert.Error(t, f.Store().Err())

	st.FailProjects(false)
	require.NoError(t, f.Refresh(context.Background()))
	assert.NoError(t, f.Store().Err())
	_, ok = f.Store().Get("api")
	assert.False(t, ok)
}

func TestAdvisoryFailureKeepsPortsWithoutError(t *testing.T) {
	t.Parallel()

	st, f := newFetcher(t)
	require.NoError(t, f.Refresh(context.Background()))

	st.FailPorts(true)
	st.FailStats(true)
	st.SeedPort("web", models.PortEntry{Port: 5173})
	report := f.Fetch(context.Background())

	assert.NoError(t, report.Projects)
	assert.Error(t, report.Ports)
	assert.Error(t, report.Stats)
	assert.NoError(t, f.Store().Err())

	ports := f.Store().Ports()
	require.Len(t, ports, 1)
	assert.Equal(t, "api", ports[0].Service)
	assert.InDelta(t, 10, f.Store().Stats().CPUTotal, 0.001)
}

func TestAdvisoryFailureDoesNotClearProjectError(t *testing.T) {
	t.Parallel()

	st, f := newFetcher(t)
	st.FailProjects(true)
	_ = f.Fetch(context.Background())
	require.Error(t, f.Store().Err())

	st.FailPorts(true)
	_ = f.Fetch(context.Background())
	assert.Error(t, f.Store().Err())
	assert.False(t, f.Store().Loaded())
}
