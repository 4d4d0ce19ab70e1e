package detect

import (
	"os"
	"path/filepath"
	"sync"
)

// ProjectResolver finds project roots by walking up the directory tree
type ProjectResolver struct {
	cache map[string]string
	mu    sync.RWMutex
}

// NewProjectResolver creates a new resolver instance
func NewProjectResolver() *ProjectResolver {
	return &ProjectResolver{
		cache: make(map[string]string),
	}
}

// ProjectMarkers are files/dirs that indicate a project root
var ProjectMarkers = []string{
	".git",
	"package.json",
	"composer.json",
	"Gemfile",
	"go.mod",
	"pyproject.toml",
	"requirements.txt",
	"Makefile",
	"Cargo.toml",
}

// FindProjectRoot searches up from startPath for the nearest directory holding
// a project marker. It returns "" when none is found.
func (pr *ProjectResolver) FindProjectRoot(startPath string) string {
	if startPath == "" {
		return ""
	}
	start, err := filepath.Abs(startPath)
	if err != nil {
		return ""
	}

	pr.mu.RLock()
	if cached, ok := pr.cache[start]; ok {
		pr.mu.RUnlock()
		return cached
	}
	pr.mu.RUnlock()

	root := ""
	current := start
	for {
		if hasMarker(current) {
			root = current
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	pr.mu.Lock()
	pr.cache[start] = root
	pr.mu.Unlock()
	return root
}

func hasMarker(dir string) bool {
	for _, marker := range ProjectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// ClearCache clears all cached mappings
func (pr *ProjectResolver) ClearCache() {
	pr.mu.Lock()
	pr.cache = make(map[string]string)
	pr.mu.Unlock()
}
