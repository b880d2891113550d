package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// SamplePages are small documents with known accessibility findings.
var SamplePages = map[string]string{
	"a.html":       `<!doctype html><html lang="en"><body><img src="logo.png" alt="Logo"><img src="hero.png"></body></html>`,
	"b.html":       `<!doctype html><html><body><p>No language declared</p></body></html>`,
	"nested/c.htm": `<html lang="fr"><body><img src="c.png"></body></html>`,
}

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSamplePages writes SamplePages under dir and returns dir.
func WriteSamplePages(t *testing.T, dir string) string {
	t.Helper()
	for name, content := range SamplePages {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), []byte(content))
	}
	return dir
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func FormatJSON(raw []byte) string {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	encoded, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(raw)
	}
	return fmt.Sprintf("%s\n", string(encoded))
}

// CaptureStdout runs fn with os.Stdout redirected and returns what it wrote.
func CaptureStdout(t *testing.T, fn func()) string {
	t.Helper()
	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = writer
	defer func() {
		os.Stdout = original
	}()

	type readResult struct {
		raw []byte
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		raw, readErr := io.ReadAll(reader)
		resultCh <- readResult{raw: raw, err: readErr}
	}()

	fn()

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	result := <-resultCh
	if result.err != nil {
		t.Fatalf("read stdout: %v", result.err)
	}
	return string(result.raw)
}

// DecodeJSONMap decodes the last JSON object a command printed.
func DecodeJSONMap(t *testing.T, output string) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, output)
	}
	return decoded
}
