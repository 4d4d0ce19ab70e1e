package store

import (
	"sort"
	"sync"
	"time"

	"github.com/devports/kdcdash/pkg/models"
)

// Store is the in-memory mirror of the last successful snapshot of each
// backend resource. It never invents keys; every resource is replaced
// wholesale and a failed read simply leaves the previous value in place.
type Store struct {
	mu       sync.RWMutex
	projects map[string]models.Project
	ports    map[string]models.PortEntry
	stats    *models.SystemStats
	err      error
	loaded   bool
	updated  time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		projects: make(map[string]models.Project),
		ports:    make(map[string]models.PortEntry),
	}
}

// Get returns a copy of one project
func (s *Store) Get(id string) (models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// All returns every project sorted by identifier
func (s *Store) All() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ports returns every registry entry sorted by port, then service
func (s *Store) Ports() []models.PortEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PortEntry, 0, len(s.ports))
	for _, e := range s.ports {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].Service < out[j].Service
	})
	return out
}

// Stats returns the last system stats, or nil when none were ever read
func (s *Store) Stats() *models.SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return nil
	}
	cp := *s.stats
	return &cp
}

// ReplaceProjects swaps in a new project snapshot. Keys are authoritative;
// Project.ID is forced to match its key.
func (s *Store) ReplaceProjects(projects map[string]models.Project) {
	next := make(map[string]models.Project, len(projects))
	for id, p := range projects {
		p.ID = id
		next[id] = p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = next
	s.loaded = true
	s.updated = time.Now()
}

// ReplacePorts swaps in a new port registry snapshot
func (s *Store) ReplacePorts(ports map[string]models.PortEntry) {
	next := make(map[string]models.PortEntry, len(ports))
	for name, e := range ports {
		e.Service = name
		next[name] = e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = next
}

// ReplaceStats swaps in new system stats
func (s *Store) ReplaceStats(stats models.SystemStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &stats
}

// SetError records the outcome of the last project read; nil clears the flag
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the last project read failure, if any
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Loaded reports whether at least one project snapshot has been stored
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// UpdatedAt is the time of the last project snapshot
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
