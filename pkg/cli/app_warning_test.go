package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/devports/kdcdash/pkg/models"
)

func TestWarnPortConflicts(t *testing.T) {
	t.Parallel()

	entries := []models.PortEntry{
		{Service: "grafana", Port: 3000},
		{Service: "api", Port: 3000},
		{Service: "web", Port: 5173},
	}

	var out bytes.Buffer
	warnPortConflicts(entries, &out)
	s := out.String()
	if !strings.HasPrefix(s, "Warning:") {
		t.Fatalf("expected Warning prefix, got: %q", s)
	}
	if !strings.Contains(s, ":3000 (api, grafana)") {
		t.Fatalf("expected warning to list shared port, got: %q", s)
	}
	if strings.Contains(s, "5173") {
		t.Fatalf("unshared port must not be listed, got: %q", s)
	}
}

func TestWarnPortConflictsSilentWithoutConflicts(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	warnPortConflicts([]models.PortEntry{{Service: "web", Port: 5173}}, &out)
	if out.Len() != 0 {
		t.Fatalf("expected no output, got: %q", out.String())
	}
}
