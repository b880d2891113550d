package scenarios

import (
	"fmt"
	"os"
	"path/filepath"
)

const scenarioRootRelativePath = "scenarios/evidencekit"

var requiredScenarioMinimumFiles = map[string][]string{
	"img-alt-node-array":       {"README.md", "page.json", "expected.yaml"},
	"tamper-digest-hex":        {"README.md", "page.json", "expected.yaml"},
	"mixed-html-pages":         {"README.md", "a.html", "b.html", "expected.yaml"},
	"colliding-artifact-names": {"README.md", "page.html", "page.json", "flags.yaml", "expected.yaml"},
}

func findRepoRoot(startDir string) (string, error) {
	current := startDir
	for {
		candidate := filepath.Join(current, "go.mod")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("unable to locate repository root from %s", startDir)
		}
		current = parent
	}
}
