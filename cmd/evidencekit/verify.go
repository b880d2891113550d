package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/projectconfig"
	"github.com/davidahmann/evidencekit/core/sign"
	"github.com/davidahmann/evidencekit/core/store"
	"github.com/davidahmann/evidencekit/core/verify"
)

type verifyOutput struct {
	OK     bool           `json:"ok"`
	Path   string         `json:"path,omitempty"`
	Report *verify.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func runVerify(arguments []string) int {
	flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var storeDir string
	var bundleID string
	var strictMethods bool
	var publicKeyPath string
	var publicKeyEnv string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&configPath, "config", projectconfig.DefaultPath, "project config path")
	flagSet.StringVar(&storeDir, "store", "", "bundle store directory")
	flagSet.StringVar(&bundleID, "bundle", "", "bundle id to verify from --store")
	flagSet.BoolVar(&strictMethods, "strict-methods", false, "warn about method ids the catalog does not know")
	flagSet.StringVar(&publicKeyPath, "public-key", "", "path to base64 ed25519 public key; requires a valid bundle signature")
	flagSet.StringVar(&publicKeyEnv, "public-key-env", "", "env var containing base64 ed25519 public key")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVarP(&helpFlag, "help", "h", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	configuration, err := projectconfig.Load(configPath, true)
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}

	keyConfig := sign.KeyConfig{PublicKeyPath: publicKeyPath, PublicKeyEnv: publicKeyEnv}
	if !keyConfig.HasPublicSource() {
		keyConfig = sign.KeyConfig{PublicKeyPath: configuration.Signing.PublicKey, PublicKeyEnv: configuration.Signing.PublicKeyEnv}
	}
	opts := verify.Options{StrictMethods: strictMethods || configuration.Verify.StrictMethods}
	if keyConfig.HasPublicSource() {
		publicKey, err := sign.LoadVerifyKey(keyConfig)
		if err != nil {
			return writeFailure(jsonOutput, err)
		}
		opts.PublicKey = publicKey
	}

	var report verify.Report
	var target string
	switch {
	case storeDir != "" || bundleID != "":
		if storeDir == "" || bundleID == "" {
			return writeFailure(jsonOutput, coreerrors.Validation("", "--store and --bundle must be used together"))
		}
		if len(flagSet.Args()) > 0 {
			return writeFailure(jsonOutput, coreerrors.Validation("", "unexpected arguments with --store"))
		}
		bundle, err := (store.DirStore{Root: storeDir}).Get(bundleID)
		if err != nil {
			return writeFailure(jsonOutput, err)
		}
		target = bundleID
		report, err = verify.Bundle(bundle, opts)
		if err != nil {
			return writeFailure(jsonOutput, err)
		}
	default:
		if len(flagSet.Args()) != 1 {
			return writeFailure(jsonOutput, coreerrors.Validation("", "expected exactly one output directory"))
		}
		target = flagSet.Args()[0]
		report, err = verify.Dir(target, opts)
		if err != nil {
			return writeFailure(jsonOutput, err)
		}
	}

	exitCode := exitOK
	reportErr := report.Err()
	if reportErr != nil {
		exitCode = exitCodeForError(reportErr)
	}
	if jsonOutput {
		output := verifyOutput{OK: report.OK, Path: target, Report: &report}
		if reportErr != nil {
			output.Error = reportErr.Error()
		}
		return writeJSONOutput(output, exitCode)
	}
	for _, entry := range report.Entries {
		if entry.OK {
			continue
		}
		fmt.Printf("  %s: %s %s\n", entry.FindingID, entry.Code, entry.Message)
	}
	for _, issue := range report.Methods {
		fmt.Printf("  method %s: %s\n", issue.Level, issue.Message)
	}
	if report.Signature != "" {
		fmt.Printf("  signature: %s\n", report.Signature)
	}
	if reportErr != nil {
		fmt.Printf("verify: failed %s (%d of %d checked)\n", target, report.Failed, report.Checked)
		return exitCode
	}
	fmt.Printf("verify: ok %s (%d checked)\n", target, report.Checked)
	return exitOK
}
