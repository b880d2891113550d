package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/jcs"
	"github.com/davidahmann/evidencekit/core/methods"
)

type canonOutput struct {
	OK        bool   `json:"ok"`
	Canonical string `json:"canonical,omitempty"`
	Alg       string `json:"alg,omitempty"`
	Hex       string `json:"hex,omitempty"`
}

func runCanon(arguments []string, stdin io.Reader) int {
	flagSet := pflag.NewFlagSet("canon", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var digestOnly bool
	var allowComments bool
	var vectorDir string
	var vectorID string
	var jsonOutput bool
	var helpFlag bool

	flagSet.BoolVar(&digestOnly, "digest", false, "print the sha256 digest of the canonical form")
	flagSet.StringVar(&vectorDir, "vector", "", "check a conformance vector directory holding input.json and expected.json")
	flagSet.StringVar(&vectorID, "vector-id", "", "method id of the vector (default: the directory name)")
	flagSet.BoolVar(&allowComments, "jsonc", false, "accept comments and trailing commas in the input")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVarP(&helpFlag, "help", "h", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	if vectorDir != "" {
		if vectorID == "" {
			vectorID = filepath.Base(filepath.Clean(vectorDir))
		}
		return runCanonVector(vectorDir, vectorID, jsonOutput)
	}
	if len(flagSet.Args()) > 1 {
		return writeFailure(jsonOutput, coreerrors.Validation("", "expected at most one input file"))
	}

	var raw []byte
	var err error
	if len(flagSet.Args()) == 0 || flagSet.Args()[0] == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		// #nosec G304 -- explicit local path from the operator.
		raw, err = os.ReadFile(flagSet.Args()[0])
	}
	if err != nil {
		if os.IsNotExist(err) {
			return writeFailure(jsonOutput, coreerrors.NotFound("", "%v", err))
		}
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true))
	}

	if allowComments {
		raw = jsonc.ToJSON(raw)
	}
	canonical, err := jcs.CanonicalizeJSON(raw)
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "canonicalize: %v", err))
	}
	sum := digest.Bytes(canonical)
	if jsonOutput {
		output := canonOutput{OK: true}
		if digestOnly {
			output.Alg, output.Hex = sum.Alg, sum.Hex
		} else {
			output.Canonical = string(canonical)
		}
		return writeJSONOutput(output, exitOK)
	}
	if digestOnly {
		fmt.Printf("%s:%s\n", sum.Alg, sum.Hex)
		return exitOK
	}
	fmt.Println(string(canonical))
	return exitOK
}

// runCanonVector checks <dir>/input.json against <dir>/expected.json for vectorID.
func runCanonVector(dir, vectorID string, jsonOutput bool) int {
	input, err := readLocalFile(filepath.Join(dir, "input.json"))
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	expected, err := readLocalFile(filepath.Join(dir, "expected.json"))
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	issues := methods.CheckVector(vectorID, input, expected)
	output := methodsValidateOutput{OK: !methods.HasErrors(issues), Path: dir, Kind: "vector", Claimed: []string{vectorID}, Issues: issues}
	return writeIssues("canon vector", jsonOutput, output, vectorID)
}
