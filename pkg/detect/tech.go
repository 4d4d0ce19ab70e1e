package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type frameworkHint struct {
	needle string
	name   string
}

var nodeFrameworks = []frameworkHint{
	{"next", "Next.js"},
	{"nuxt", "Nuxt"},
	{"express", "Express"},
	{"fastify", "Fastify"},
	{"koa", "Koa"},
	{"vite", "Vite"},
	{"react", "React"},
	{"vue", "Vue"},
}

var pythonFrameworks = []frameworkHint{
	{"django", "Django"},
	{"fastapi", "FastAPI"},
	{"uvicorn", "FastAPI"},
	{"flask", "Flask"},
	{"streamlit", "Streamlit"},
	{"gunicorn", "Gunicorn"},
}

// Tech returns a label like "Python (FastAPI)" for the project at path.
// The start script is consulted first, then marker files in the project root.
// It returns "" when nothing is recognised.
func Tech(resolver *ProjectResolver, path, startScript string) string {
	if label := techFromCommand(startScript); label != "" {
		return label
	}
	if path == "" {
		return ""
	}
	root := path
	if resolver != nil {
		if found := resolver.FindProjectRoot(path); found != "" {
			root = found
		}
	}
	return techFromDir(root)
}

func techFromCommand(command string) string {
	cmd := strings.ToLower(strings.TrimSpace(command))
	if cmd == "" {
		return ""
	}
	fields := strings.Fields(cmd)
	exe := filepath.Base(fields[0])
	switch {
	case exe == "bash" || exe == "sh" || strings.HasSuffix(exe, ".sh"):
		return "Bash"
	case exe == "node" || exe == "npm" || exe == "yarn" || exe == "pnpm" || exe == "npx":
		return withFramework("Node.js", cmd, nodeFrameworks)
	case strings.HasPrefix(exe, "python") || exe == "uvicorn" || exe == "gunicorn" || exe == "streamlit":
		return withFramework("Python", cmd, pythonFrameworks)
	case exe == "go":
		return "Go"
	case exe == "cargo":
		return "Rust"
	case exe == "ruby" || exe == "rails" || exe == "bundle":
		return "Ruby"
	case exe == "php":
		return "PHP"
	case exe == "java":
		return "Java"
	default:
		return ""
	}
}

func withFramework(lang, haystack string, hints []frameworkHint) string {
	for _, h := range hints {
		if strings.Contains(haystack, h.needle) {
			return lang + " (" + h.name + ")"
		}
	}
	return lang
}

func techFromDir(dir string) string {
	if deps, ok := packageJSONDeps(filepath.Join(dir, "package.json")); ok {
		return withFramework("Node.js", deps, nodeFrameworks)
	}
	if exists(filepath.Join(dir, "go.mod")) {
		return "Go"
	}
	if deps, ok := pyprojectDeps(filepath.Join(dir, "pyproject.toml")); ok {
		return withFramework("Python", deps, pythonFrameworks)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "requirements.txt")); err == nil {
		return withFramework("Python", strings.ToLower(string(data)), pythonFrameworks)
	}
	if exists(filepath.Join(dir, "Cargo.toml")) {
		return "Rust"
	}
	if exists(filepath.Join(dir, "Gemfile")) {
		return "Ruby"
	}
	if exists(filepath.Join(dir, "composer.json")) {
		return "PHP"
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.sh")); len(matches) > 0 {
		return "Bash"
	}
	return ""
}

// packageJSONDeps returns the dependency names of a package.json, lowercased and space separated
func packageJSONDeps(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", true
	}
	var names []string
	for name := range pkg.Dependencies {
		names = append(names, name)
	}
	for name := range pkg.DevDependencies {
		names = append(names, name)
	}
	return strings.ToLower(strings.Join(names, " ")), true
}

// pyprojectDeps reads PEP 621 and Poetry dependency lists
func pyprojectDeps(path string) (string, bool) {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return "", false
		}
		return "", true
	}
	names := append([]string(nil), doc.Project.Dependencies...)
	for name := range doc.Tool.Poetry.Dependencies {
		names = append(names, name)
	}
	return strings.ToLower(strings.Join(names, " ")), true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
