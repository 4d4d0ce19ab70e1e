package reconcile

import "github.com/devports/kdcdash/pkg/models"

// Converged reports whether p shows the outcome verb was waiting for.
// Restart has no target state and only finishes by exhausting its attempts.
// A project without git information counts as clean for sync.
func Converged(verb models.Verb, p models.Project) bool {
	switch verb {
	case models.VerbStart:
		return p.Status == models.StatusRunning
	case models.VerbStop:
		return p.Status == models.StatusStopped
	case models.VerbSync:
		return p.Git == nil || !p.Git.IsDirty
	default:
		return false
	}
}
