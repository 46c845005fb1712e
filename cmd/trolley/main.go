package main

import (
	"os"
	"strings"

	"trolley/internal/cli"
)

func isListID(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "lst-") {
		return false
	}
	// Keep it permissive; IDs are generated but users may paste variants.
	return len(s) > len("lst-")
}

// rewriteDirectListArgs makes `trolley <list-id>` behave like
// `trolley items --list <list-id>`.
//
// Cobra treats the first non-flag token as a subcommand, so argv is
// rewritten before parsing. Users often put persistent flags first
// (e.g. `trolley --dir ... lst-abc123`), so the first positional token
// is what matters, not argv[1].
func rewriteDirectListArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	// Minimal persistent-flag awareness. Unknown flags are skipped
	// without consuming a value, so a pasted ID never disappears into
	// one.
	valueFlags := map[string]bool{
		"--dir":    true,
		"--server": true,
		"--format": true,
	}
	boolFlags := map[string]bool{
		"--pretty": true,
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			// Everything after this is positional to cobra; a rewrite
			// could not route to a subcommand anyway.
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") {
				continue
			}
			if boolFlags[a] {
				continue
			}
			if valueFlags[a] {
				i++ // skip the flag's value
				continue
			}
			continue
		}

		// First positional token.
		if isListID(a) {
			out := make([]string, 0, len(argv)+2)
			out = append(out, argv[:i]...)
			out = append(out, "items", "--list")
			out = append(out, argv[i:]...)
			return out
		}
		return argv
	}

	return argv
}

func main() {
	os.Args = rewriteDirectListArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
