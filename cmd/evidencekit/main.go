package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	switch arguments[1] {
	case "scan":
		return runScan(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "canon":
		return runCanon(arguments[2:], os.Stdin)
	case "methods":
		return runMethods(arguments[2:])
	case "keys":
		return runKeys(arguments[2:])
	case "handle":
		return runHandle(arguments[2:], os.Stdin)
	case "version", "--version", "-v":
		fmt.Println("evidencekit", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  evidencekit scan <file|dir>... [--out <dir>] [--config <path>] [--parallelism <n>] [--strict-ids] [--no-summary] [--private-key <path>|--private-key-env <VAR>] [--store <dir>] [--json] [--verbose]")
	fmt.Println("  evidencekit verify <out_dir> [--config <path>] [--strict-methods] [--public-key <path>|--public-key-env <VAR>] [--json]")
	fmt.Println("  evidencekit verify --store <dir> --bundle <bundle_id> [--strict-methods] [--public-key <path>|--public-key-env <VAR>] [--json]")
	fmt.Println("  evidencekit canon [<file.json>|-] [--digest] [--jsonc] [--json]")
	fmt.Println("  evidencekit canon --vector <dir> [--vector-id <method_id>] [--json]")
	fmt.Println("  evidencekit methods list [--json]")
	fmt.Println("  evidencekit methods validate <record.json|bundle.json> [--strict] [--json]")
	fmt.Println("  evidencekit methods validate-manifest <prov-capabilities.json> [--json]")
	fmt.Println("  evidencekit keys init [--out-dir <dir>] [--prefix <name>] [--force] [--json]")
	fmt.Println("  evidencekit handle [--tool <name>] < request.json")
	fmt.Println("  evidencekit version")
}
