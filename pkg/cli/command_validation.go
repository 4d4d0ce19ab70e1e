package cli

import (
	"fmt"
	"strings"

	"github.com/devports/kdcdash/pkg/process"
)

var blockedShellPatterns = []string{
	"&&", "||", ";", "|", ">", "<", "`", "$(", "${",
}

func firstBlockedShellPattern(command string) (string, bool) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return "", false
	}
	for _, p := range blockedShellPatterns {
		if strings.Contains(cmd, p) {
			return p, true
		}
	}
	return "", false
}

// validateStartScript accepts an empty script (pmctl picks its own) or a
// direct executable command with balanced quotes
func validateStartScript(command string) error {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return nil
	}
	if p, ok := firstBlockedShellPattern(cmd); ok {
		return fmt.Errorf("start script contains disallowed shell pattern %q; use a direct executable command (e.g. \"npm run dev\") or a script file", p)
	}
	if _, err := process.SplitCommand(cmd); err != nil {
		return fmt.Errorf("start script does not parse: %w", err)
	}
	return nil
}
