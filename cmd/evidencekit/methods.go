package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/methods"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/store"
)

type methodsListOutput struct {
	OK      bool             `json:"ok"`
	Methods []methods.Method `json:"methods"`
}

type methodsValidateOutput struct {
	OK      bool            `json:"ok"`
	Path    string          `json:"path"`
	Kind    string          `json:"kind"`
	Claimed []string        `json:"claimed"`
	Issues  []methods.Issue `json:"issues"`
}

func runMethods(arguments []string) int {
	if len(arguments) == 0 {
		printUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "list":
		return runMethodsList(arguments[1:])
	case "validate":
		return runMethodsValidate(arguments[1:])
	case "validate-manifest":
		return runMethodsValidateManifest(arguments[1:])
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func runMethodsList(arguments []string) int {
	flagSet := pflag.NewFlagSet("methods list", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	var jsonOutput bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	catalog, err := methods.Default()
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Internal(err))
	}
	listed := catalog.Methods()
	if jsonOutput {
		return writeJSONOutput(methodsListOutput{OK: true, Methods: listed}, exitOK)
	}
	for _, method := range listed {
		fmt.Printf("%-40s %-12s %s\n", method.ID, method.Status, method.Summary)
	}
	return exitOK
}

func runMethodsValidate(arguments []string) int {
	flagSet := pflag.NewFlagSet("methods validate", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	var strict bool
	var jsonOutput bool
	flagSet.BoolVar(&strict, "strict", false, "warn about method ids the catalog does not know")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if len(flagSet.Args()) != 1 {
		return writeFailure(jsonOutput, coreerrors.Validation("", "expected exactly one record or bundle file"))
	}
	target := flagSet.Args()[0]
	content, err := readLocalFile(target)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	kind, claimed, err := claimedMethods(content)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	catalog, err := methods.Default()
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Internal(err))
	}
	issues := catalog.ValidateRecordMethods(claimed, strict)
	output := methodsValidateOutput{OK: !methods.HasErrors(issues), Path: target, Kind: kind, Claimed: claimed, Issues: issues}
	return writeIssues("methods validate", jsonOutput, output, fmt.Sprintf("%d methods", len(claimed)))
}

func runMethodsValidateManifest(arguments []string) int {
	flagSet := pflag.NewFlagSet("methods validate-manifest", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	var jsonOutput bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if len(flagSet.Args()) != 1 {
		return writeFailure(jsonOutput, coreerrors.Validation("", "expected exactly one capability manifest"))
	}
	target := flagSet.Args()[0]
	content, err := readLocalFile(target)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	manifest, err := methods.ParseManifest(content)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	catalog, err := methods.Default()
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Internal(err))
	}
	issues := catalog.ValidateManifest(manifest)
	output := methodsValidateOutput{OK: !methods.HasErrors(issues), Path: target, Kind: "manifest", Claimed: manifest.Implements, Issues: issues}
	return writeIssues("methods validate-manifest", jsonOutput, output, fmt.Sprintf("%d implemented methods", len(manifest.Implements)))
}

// writeIssues prints a validation outcome. Error-level issues exit 2.
func writeIssues(command string, jsonOutput bool, output methodsValidateOutput, detail string) int {
	if output.Issues == nil {
		output.Issues = []methods.Issue{}
	}
	if output.Claimed == nil {
		output.Claimed = []string{}
	}
	exitCode := exitOK
	if !output.OK {
		exitCode = exitVerifyFailed
	}
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	for _, issue := range output.Issues {
		fmt.Printf("  %s: %s\n", issue.Level, issue.Message)
	}
	if !output.OK {
		fmt.Printf("%s: failed %s\n", command, output.Path)
		return exitCode
	}
	fmt.Printf("%s: ok %s (%s)\n", command, output.Path, detail)
	return exitOK
}

func readLocalFile(target string) ([]byte, error) {
	// #nosec G304 -- explicit local path from the operator.
	content, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.NotFound("", "%s not found", target)
		}
		return nil, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)
	}
	return content, nil
}

// claimedMethods reports the method ids a record or bundle claims.
func claimedMethods(content []byte) (string, []string, error) {
	var header struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(content, &header); err != nil {
		return "", nil, coreerrors.Validation("", "parse input: %v", err)
	}
	if header.Schema == schemaevidence.BundleSchema {
		bundle, err := store.DecodeBundle(content)
		if err != nil {
			return "", nil, err
		}
		return "bundle", bundle.Methods, nil
	}
	record, err := store.DecodeRecord(content)
	if err != nil {
		return "", nil, err
	}
	return "record", []string{record.MethodID}, nil
}
