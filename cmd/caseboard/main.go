package main

import (
	"os"
	"strings"

	"caseboard/internal/cli"
)

// Persistent flags that take a separate value token.
var valueFlags = map[string]bool{
	"--config":    true,
	"--db":        true,
	"--remote":    true,
	"--token":     true,
	"--format":    true,
	"--log-level": true,
}

func isTaskID(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "task-") && len(s) > len("task-")
}

// firstPositional is the index of the first non-flag token after argv[0].
func firstPositional(argv []string) (int, bool) {
	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		switch {
		case a == "":
		case a == "--":
			if i+1 < len(argv) {
				return i + 1, true
			}
			return 0, false
		case strings.HasPrefix(a, "-"):
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
		default:
			return i, true
		}
	}
	return 0, false
}

// rewriteTaskLookupArgs makes `caseboard <task-id>` behave like
// `caseboard tasks show <task-id>`. Cobra would read the id as a command
// name, so argv is rewritten before parsing.
func rewriteTaskLookupArgs(argv []string) []string {
	i, ok := firstPositional(argv)
	if !ok || !isTaskID(argv[i]) {
		return argv
	}
	out := make([]string, 0, len(argv)+2)
	out = append(out, argv[:i]...)
	out = append(out, "tasks", "show")
	return append(out, argv[i:]...)
}

func main() {
	os.Args = rewriteTaskLookupArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
