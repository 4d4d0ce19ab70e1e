// Package fakepm serves an in-memory pmctl process manager and port registry
// over HTTP. Lifecycle commands take effect only after a configurable number of
// project reads, so callers observe the same eventual consistency as the real
// services.
package fakepm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/devports/kdcdash/pkg/models"
)

type pendingChange struct {
	status    string
	cleanRepo bool
	reads     int
}

// Server holds the fake fleet state
type Server struct {
	mu       sync.Mutex
	lag      int
	projects map[string]models.Project
	ports    map[string]models.PortEntry
	stats    *models.SystemStats
	pending  map[string]pendingChange

	failProjects bool
	failPorts    bool
	failStats    bool
	failCommands bool
	syncFailure  string
	shutdown     bool

	calls []string
}

// New creates a fake whose commands land after lag project reads.
// A lag of zero applies commands immediately.
func New(lag int) *Server {
	if lag < 0 {
		lag = 0
	}
	return &Server{
		lag:      lag,
		projects: make(map[string]models.Project),
		ports:    make(map[string]models.PortEntry),
		pending:  make(map[string]pendingChange),
	}
}

// SeedProject adds or replaces a project
func (s *Server) SeedProject(id string, p models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = ""
	s.projects[id] = p
}

// SeedPort adds or replaces a registry allocation
func (s *Server) SeedPort(service string, e models.PortEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Service = ""
	s.ports[service] = e
}

// SetStats sets the system stats payload; nil makes the endpoint return 404
func (s *Server) SetStats(stats *models.SystemStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// FailProjects makes GET /api/projects return 503
func (s *Server) FailProjects(fail bool) { s.setFlag(&s.failProjects, fail) }

// FailPorts makes GET /ports return 503
func (s *Server) FailPorts(fail bool) { s.setFlag(&s.failPorts, fail) }

// FailStats makes GET /api/system/stats return 503
func (s *Server) FailStats(fail bool) { s.setFlag(&s.failStats, fail) }

// FailCommands makes every per-project lifecycle command return 500
func (s *Server) FailCommands(fail bool) { s.setFlag(&s.failCommands, fail) }

// FailSync makes sync answer {success:false, message}; empty restores success
func (s *Server) FailSync(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncFailure = message
}

func (s *Server) setFlag(flag *bool, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*flag = v
}

// Remove deletes a project out of band, as another operator would
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	delete(s.pending, id)
}

// Project returns the current server-side view of one project
func (s *Server) Project(id string) (models.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok
}

// Calls returns the mutating requests received so far, as "METHOD path"
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// PMHandler serves the pmctl API
func (s *Server) PMHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects", s.handleProjects)
	mux.HandleFunc("POST /api/projects", s.handleAdd)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/projects/{id}/{verb}", s.handleAction)
	mux.HandleFunc("GET /api/system/stats", s.handleStats)
	mux.HandleFunc("POST /api/pm2/{op}", s.handleBulk)
	return s.guard(mux)
}

// RegistryHandler serves the port registry API
func (s *Server) RegistryHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ports", s.handlePorts)
	return s.guard(mux)
}

func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.shutdown
		if r.Method != http.MethodGet {
			s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		}
		s.mu.Unlock()
		if down {
			http.Error(w, "shut down", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.failProjects {
		s.mu.Unlock()
		http.Error(w, "projects unavailable", http.StatusServiceUnavailable)
		return
	}
	s.advanceLocked()
	out := make(map[string]models.Project, len(s.projects))
	for id, p := range s.projects {
		out[id] = p
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// advanceLocked counts one project read against every pending change
func (s *Server) advanceLocked() {
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		change := s.pending[id]
		change.reads++
		if change.reads < s.lag {
			s.pending[id] = change
			continue
		}
		delete(s.pending, id)
		s.applyLocked(id, change)
	}
}

func (s *Server) applyLocked(id string, change pendingChange) {
	p, ok := s.projects[id]
	if !ok {
		return
	}
	if change.status != "" {
		p.Status = change.status
		if change.status == models.StatusRunning {
			p.OpenPorts = append([]int(nil), p.Ports...)
		} else {
			p.OpenPorts = nil
			p.CPUPercent = 0
			p.MemoryMB = 0
		}
	}
	if change.cleanRepo && p.Git != nil {
		g := *p.Git
		g.IsDirty = false
		g.StatusSummary = ""
		p.Git = &g
	}
	s.projects[id] = p
}

func (s *Server) scheduleLocked(id string, change pendingChange) {
	if s.lag == 0 {
		s.applyLocked(id, change)
		return
	}
	s.pending[id] = change
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	verb, err := models.ParseVerb(r.PathValue("verb"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommands {
		http.Error(w, "command failed", http.StatusInternalServerError)
		return
	}
	p, ok := s.projects[id]
	if !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}

	switch verb {
	case models.VerbStart:
		s.scheduleLocked(id, pendingChange{status: models.StatusRunning})
	case models.VerbStop:
		s.scheduleLocked(id, pendingChange{status: models.StatusStopped})
	case models.VerbRestart:
		p.Status = models.StatusStopped
		p.OpenPorts = nil
		s.projects[id] = p
		s.scheduleLocked(id, pendingChange{status: models.StatusRunning})
	case models.VerbSync:
		if s.syncFailure != "" {
			writeJSON(w, http.StatusOK, models.ActionResult{Success: false, Message: s.syncFailure})
			return
		}
		if p.Git == nil || !p.Git.IsRepo {
			writeJSON(w, http.StatusOK, models.ActionResult{Success: false, Message: "not a git repository"})
			return
		}
		s.scheduleLocked(id, pendingChange{cleanRepo: true})
		writeJSON(w, http.StatusOK, models.ActionResult{Success: true, Message: "pushed"})
		return
	}
	writeJSON(w, http.StatusOK, models.ActionResult{Success: true})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req models.NewProject
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := req.ServiceName
	if id == "" {
		id = req.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[id]; exists {
		writeJSON(w, http.StatusOK, models.ActionResult{Success: false, Message: fmt.Sprintf("project %q already exists", id)})
		return
	}
	s.projects[id] = models.Project{
		Name:        req.Name,
		Description: req.Description,
		Tech:        req.Tech,
		Path:        req.Path,
		Status:      models.StatusStopped,
		Category:    req.Category,
		Ports:       []int{},
		OpenPorts:   []int{},
	}
	writeJSON(w, http.StatusOK, models.ActionResult{Success: true, Message: "added " + id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}
	delete(s.projects, id)
	delete(s.pending, id)
	writeJSON(w, http.StatusOK, models.ActionResult{Success: true})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.PathValue("op") {
	case "start-all":
		for id := range s.projects {
			s.scheduleLocked(id, pendingChange{status: models.StatusRunning})
		}
	case "stop-all":
		for id := range s.projects {
			s.scheduleLocked(id, pendingChange{status: models.StatusStopped})
		}
	case "shutdown":
		for id := range s.projects {
			s.applyLocked(id, pendingChange{status: models.StatusStopped})
		}
		s.pending = make(map[string]pendingChange)
		s.shutdown = true
	default:
		http.Error(w, "unknown operation", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, models.ActionResult{Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail, stats := s.failStats, s.stats
	s.mu.Unlock()
	switch {
	case fail:
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
	case stats == nil:
		http.NotFound(w, r)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handlePorts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.failPorts {
		s.mu.Unlock()
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make(map[string]models.PortEntry, len(s.ports))
	for name, e := range s.ports {
		out[name] = e
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
