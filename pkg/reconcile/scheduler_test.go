package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devports/kdcdash/pkg/models"
)

func TestManualSchedulerOrdersByDeadlineThenSequence(t *testing.T) {
	t.Parallel()

	m := NewManualScheduler(time.Unix(0, 0))
	var order []string
	m.After(2*time.Second, func() { order = append(order, "c") })
	m.After(time.Second, func() { order = append(order, "a") })
	m.After(time.Second, func() { order = append(order, "b") })

	assert.Equal(t, 0, m.Advance(999*time.Millisecond))
	assert.Equal(t, 2, m.Advance(time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, m.Pending())

	assert.True(t, m.RunNext())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, time.Unix(2, 0), m.Now())
	assert.False(t, m.RunNext())
}

func TestManualSchedulerRunsChainedStepsInsideWindow(t *testing.T) {
	t.Parallel()

	m := NewManualScheduler(time.Unix(0, 0))
	fired := 0
	var step func()
	step = func() {
		fired++
		m.After(time.Second, step)
	}
	m.After(0, step)

	assert.Equal(t, 4, m.Advance(3*time.Second))
	assert.Equal(t, 4, fired)
	assert.Equal(t, 1, m.Pending())
}

func TestConvergedPredicate(t *testing.T) {
	t.Parallel()

	dirty := &models.GitInfo{IsRepo: true, IsDirty: true}
	clean := &models.GitInfo{IsRepo: true}
	tests := []struct {
		name string
		verb models.Verb
		p    models.Project
		want bool
	}{
		{"start running", models.VerbStart, models.Project{Status: models.StatusRunning}, true},
		{"start stopped", models.VerbStart, models.Project{Status: models.StatusStopped}, false},
		{"start other status", models.VerbStart, models.Project{Status: "errored"}, false},
		{"stop stopped", models.VerbStop, models.Project{Status: models.StatusStopped}, true},
		{"stop running", models.VerbStop, models.Project{Status: models.StatusRunning}, false},
		{"restart never", models.VerbRestart, models.Project{Status: models.StatusRunning}, false},
		{"sync dirty", models.VerbSync, models.Project{Git: dirty}, false},
		{"sync clean", models.VerbSync, models.Project{Git: clean}, true},
		{"sync no git", models.VerbSync, models.Project{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Converged(tt.verb, tt.p))
		})
	}
}
