package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devports/kdcdash/pkg/models"
)

func TestReplaceProjectsIsWholesale(t *testing.T) {
	t.Parallel()

	s := New()
	assert.False(t, s.Loaded())

	s.ReplaceProjects(map[string]models.Project{
		"api": {Name: "api", Status: models.StatusRunning},
		"web": {ID: "stale", Name: "web", Status: models.StatusStopped},
	})
	require.True(t, s.Loaded())
	web, ok := s.Get("web")
	require.True(t, ok)
	assert.Equal(t, "web", web.ID)

	s.ReplaceProjects(map[string]models.Project{"web": {Name: "web", Status: models.StatusRunning}})
	_, ok = s.Get("api")
	assert.False(t, ok, "omitted key must be dropped")
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, models.StatusRunning, all[0].Status)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	s.ReplaceProjects(map[string]models.Project{"api": {Name: "api", Status: models.StatusRunning}})
	p, _ := s.Get("api")
	p.Status = models.StatusStopped

	again, _ := s.Get("api")
	assert.Equal(t, models.StatusRunning, again.Status)
}

func TestPortsSortedAndErrorFlag(t *testing.T) {
	t.Parallel()

	s := New()
	s.ReplacePorts(map[string]models.PortEntry{
		"b": {Port: 9000},
		"a": {Port: 3000},
		"c": {Port: 3000},
	})
	ports := s.Ports()
	require.Len(t, ports, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{ports[0].Service, ports[1].Service, ports[2].Service})

	assert.Nil(t, s.Stats())
	s.ReplaceStats(models.SystemStats{CPUTotal: 4})
	assert.InDelta(t, 4, s.Stats().CPUTotal, 0.001)

	s.SetError(errors.New("boom"))
	assert.Error(t, s.Err())
	s.SetError(nil)
	assert.NoError(t, s.Err())
}
