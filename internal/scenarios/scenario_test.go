//go:build scenario

package scenarios

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
)

type scenarioFlags struct {
	StrictIDs bool `yaml:"strict_ids"`
	NoSummary bool `yaml:"no_summary"`
}

type tamperYAML struct {
	File    string `yaml:"file"`
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

type anchorYAML struct {
	ArtifactID  string `yaml:"artifact_id"`
	JSONPointer string `yaml:"json_pointer"`
}

type expectedYAML struct {
	ScanExitCode   int         `yaml:"scan_exit_code"`
	ErrorCode      string      `yaml:"error_code"`
	Findings       int         `yaml:"findings"`
	Anchor         *anchorYAML `yaml:"anchor"`
	DigestHex      string      `yaml:"digest_hex"`
	Tamper         *tamperYAML `yaml:"tamper"`
	VerifyExitCode int         `yaml:"verify_exit_code"`
	VerifyFailed   int         `yaml:"verify_failed"`
}

type scanOutput struct {
	OK        bool   `json:"ok"`
	BundleID  string `json:"bundle_id"`
	Findings  int    `json:"findings"`
	ErrorCode string `json:"error_code"`
}

type verifyOutput struct {
	OK     bool `json:"ok"`
	Report struct {
		Checked int `json:"checked"`
		Failed  int `json:"failed"`
	} `json:"report"`
}

type findingJSON struct {
	FindingID string `json:"finding_id"`
	Evidence  []struct {
		ArtifactID  string `json:"artifact_id"`
		JSONPointer string `json:"json_pointer"`
	} `json:"evidence"`
	EvidenceRef struct {
		DigestValue struct {
			Value string `json:"value"`
		} `json:"digest_value"`
	} `json:"evidence_ref"`
}

func TestEvidenceScenarios(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("get cwd: %v", err)
	}
	repoRoot, err := findRepoRoot(cwd)
	if err != nil {
		t.Fatalf("find repo root: %v", err)
	}
	scenarioRoot := filepath.Join(repoRoot, scenarioRootRelativePath)
	binaryPath := buildBinary(t, repoRoot)

	scenarioNames := make([]string, 0, len(requiredScenarioMinimumFiles))
	for name := range requiredScenarioMinimumFiles {
		scenarioNames = append(scenarioNames, name)
	}
	sort.Strings(scenarioNames)

	for _, name := range scenarioNames {
		t.Run(name, func(t *testing.T) {
			scenarioPath := filepath.Join(scenarioRoot, name)
			for _, file := range requiredScenarioMinimumFiles[name] {
				if _, err := os.Stat(filepath.Join(scenarioPath, file)); err != nil {
					t.Fatalf("scenario %s missing %s: %v", name, file, err)
				}
			}
			runScenario(t, binaryPath, scenarioPath)
		})
	}
}

func runScenario(t *testing.T, binaryPath string, scenarioPath string) {
	expected := readExpectedYAML(t, filepath.Join(scenarioPath, "expected.yaml"))
	flags := readScenarioFlags(t, filepath.Join(scenarioPath, "flags.yaml"))

	workDir := t.TempDir()
	outDir := filepath.Join(workDir, "out")
	args := []string{"scan", scenarioPath, "--out", outDir, "--config", filepath.Join(workDir, "missing.yaml"), "--json"}
	if flags.StrictIDs {
		args = append(args, "--strict-ids")
	}
	if flags.NoSummary {
		args = append(args, "--no-summary")
	}
	output, code := mustRunCommand(t, workDir, binaryPath, args...)
	if code != expected.ScanExitCode {
		t.Fatalf("unexpected scan exit code: got=%d want=%d output=%s", code, expected.ScanExitCode, output)
	}
	var scanned scanOutput
	if err := json.Unmarshal([]byte(output), &scanned); err != nil {
		t.Fatalf("parse scan output: %v output=%s", err, output)
	}
	if code != 0 {
		if expected.ErrorCode != "" && scanned.ErrorCode != expected.ErrorCode {
			t.Fatalf("unexpected error code: got=%s want=%s", scanned.ErrorCode, expected.ErrorCode)
		}
		if _, err := os.Stat(outDir); !os.IsNotExist(err) {
			t.Fatalf("failed scan must not write %s (stat err=%v)", outDir, err)
		}
		return
	}
	if scanned.Findings != expected.Findings {
		t.Fatalf("unexpected findings: got=%d want=%d", scanned.Findings, expected.Findings)
	}
	if expected.Anchor != nil || expected.DigestHex != "" {
		checkFirstFinding(t, outDir, expected)
	}

	if expected.Tamper != nil {
		target := filepath.Join(outDir, filepath.FromSlash(expected.Tamper.File))
		content, err := os.ReadFile(target)
		if err != nil {
			t.Fatalf("read tamper target: %v", err)
		}
		tampered := strings.Replace(string(content), expected.Tamper.Find, expected.Tamper.Replace, 1)
		if tampered == string(content) {
			t.Fatalf("tamper text %q not found in %s", expected.Tamper.Find, expected.Tamper.File)
		}
		if err := os.WriteFile(target, []byte(tampered), 0o600); err != nil {
			t.Fatalf("write tampered file: %v", err)
		}
	}

	output, code = mustRunCommand(t, workDir, binaryPath, "verify", outDir, "--json")
	if code != expected.VerifyExitCode {
		t.Fatalf("unexpected verify exit code: got=%d want=%d output=%s", code, expected.VerifyExitCode, output)
	}
	var verified verifyOutput
	if err := json.Unmarshal([]byte(output), &verified); err != nil {
		t.Fatalf("parse verify output: %v output=%s", err, output)
	}
	if verified.Report.Failed != expected.VerifyFailed {
		t.Fatalf("unexpected failed count: got=%d want=%d", verified.Report.Failed, expected.VerifyFailed)
	}
}

func checkFirstFinding(t *testing.T, outDir string, expected expectedYAML) {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(outDir, "findings.json"))
	if err != nil {
		t.Fatalf("read findings: %v", err)
	}
	var document struct {
		Summary struct {
			FilesScanned int `json:"files_scanned"`
		} `json:"summary"`
		Findings []findingJSON `json:"findings"`
	}
	if err := json.Unmarshal(content, &document); err != nil {
		t.Fatalf("parse findings: %v", err)
	}
	if len(document.Findings) == 0 || document.Summary.FilesScanned == 0 {
		t.Fatalf("expected at least one finding from a scanned file")
	}
	first := document.Findings[0]
	if expected.Anchor != nil {
		if len(first.Evidence) == 0 {
			t.Fatalf("finding has no evidence anchor")
		}
		anchor := first.Evidence[0]
		if anchor.ArtifactID != expected.Anchor.ArtifactID || anchor.JSONPointer != expected.Anchor.JSONPointer {
			t.Fatalf("unexpected anchor: %+v", anchor)
		}
	}
	if expected.DigestHex != "" && first.EvidenceRef.DigestValue.Value != expected.DigestHex {
		t.Fatalf("unexpected digest: got=%s want=%s", first.EvidenceRef.DigestValue.Value, expected.DigestHex)
	}
}

func readExpectedYAML(t *testing.T, path string) expectedYAML {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var expected expectedYAML
	if err := yaml.Unmarshal(content, &expected); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return expected
}

func readScenarioFlags(t *testing.T, path string) scenarioFlags {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return scenarioFlags{}
		}
		t.Fatalf("read %s: %v", path, err)
	}
	var flags scenarioFlags
	if err := yaml.Unmarshal(content, &flags); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return flags
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()
	binaryPath := filepath.Join(t.TempDir(), "evidencekit")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/evidencekit")
	build.Dir = repoRoot
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build evidencekit: %v\n%s", err, string(out))
	}
	return binaryPath
}

func mustRunCommand(t *testing.T, workDir string, binaryPath string, args ...string) (string, int) {
	t.Helper()
	command := exec.Command(binaryPath, args...)
	command.Dir = workDir
	output, err := command.Output()
	if err == nil {
		return string(output), 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(output), exitErr.ExitCode()
	}
	t.Fatalf("run %v: %v", args, err)
	return "", -1
}
