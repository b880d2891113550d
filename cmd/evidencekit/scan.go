package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/projectconfig"
	"github.com/davidahmann/evidencekit/core/provenance"
	"github.com/davidahmann/evidencekit/core/scan"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/sign"
	"github.com/davidahmann/evidencekit/core/store"
	"github.com/davidahmann/evidencekit/core/verify"
)

type scanOutput struct {
	OK        bool   `json:"ok"`
	OutDir    string `json:"out_dir"`
	BundleID  string `json:"bundle_id"`
	Documents int    `json:"documents"`
	Findings  int    `json:"findings"`
	Artifacts int    `json:"artifacts"`
	Signed    bool   `json:"signed,omitempty"`
	StoreDir  string `json:"store_dir,omitempty"`
}

var scanExtensions = map[string]bool{".html": true, ".htm": true, ".json": true}

func runScan(arguments []string) int {
	flagSet := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var outDir string
	var configPath string
	var parallelism int
	var strictIDs bool
	var noSummary bool
	var privateKeyPath string
	var privateKeyEnv string
	var storeDir string
	var jsonOutput bool
	var verbose bool
	var helpFlag bool

	flagSet.StringVar(&outDir, "out", "", "output directory for findings and provenance")
	flagSet.StringVar(&configPath, "config", projectconfig.DefaultPath, "project config path")
	flagSet.IntVar(&parallelism, "parallelism", 0, "concurrent provenance emitters")
	flagSet.BoolVar(&strictIDs, "strict-ids", false, "reject duplicate artifact ids within the scan")
	flagSet.BoolVar(&noSummary, "no-summary", false, "omit the session summary record")
	flagSet.StringVar(&privateKeyPath, "private-key", "", "path to base64 ed25519 private key used to seal the bundle")
	flagSet.StringVar(&privateKeyEnv, "private-key-env", "", "env var containing base64 ed25519 private key")
	flagSet.StringVar(&storeDir, "store", "", "also keep the bundle in this bundle store directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	flagSet.BoolVarP(&helpFlag, "help", "h", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if helpFlag {
		printUsage()
		return exitOK
	}
	paths := flagSet.Args()
	if len(paths) == 0 {
		return writeFailure(jsonOutput, coreerrors.Validation("", "expected at least one file or directory to scan"))
	}
	configuration, err := projectconfig.Load(configPath, true)
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if !flagSet.Changed("out") {
		outDir = configuration.Scan.OutDir
	}
	if !flagSet.Changed("parallelism") {
		parallelism = configuration.Scan.Parallelism
	}
	strictIDs = strictIDs || configuration.Capture.EnforceUniqueArtifactIDs
	keyConfig := sign.KeyConfig{PrivateKeyPath: privateKeyPath, PrivateKeyEnv: privateKeyEnv}
	if !keyConfig.HasPrivateSource() {
		keyConfig = sign.KeyConfig{PrivateKeyPath: configuration.Signing.PrivateKey, PrivateKeyEnv: configuration.Signing.PrivateKeyEnv}
	}
	logger := newLogger(verbose)

	inputs, err := collectInputs(paths)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	agent := schemaevidence.Agent{Name: configuration.Agent.Name, Version: configuration.Agent.Version}
	if agent.Version == "" {
		agent.Version = version
	}
	builder, err := provenance.NewBuilder(provenance.Options{Agent: agent})
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, err := scan.Run(ctx, inputs, scan.Options{
		Builder:       builder,
		Parallelism:   parallelism,
		EnforceUnique: strictIDs,
		Summary:       configuration.SummaryEnabled() && !noSummary,
		Logger:        logger,
	})
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	bundle := result.Bundle
	if keyConfig.HasPrivateSource() {
		keys, err := sign.LoadSigningKey(keyConfig)
		if err != nil {
			return writeFailure(jsonOutput, err)
		}
		if bundle, err = verify.Seal(bundle, keys.Private); err != nil {
			return writeFailure(jsonOutput, err)
		}
		logger.Debug("bundle sealed", "key_id", bundle.Signature.KeyID)
	}
	document := schemaevidence.NewFindingsDocument(bundle.Agent, strings.Join(paths, ","), len(inputs), result.Findings)
	if err := store.WriteLayout(outDir, document, bundle, logger); err != nil {
		return writeFailure(jsonOutput, err)
	}
	if storeDir != "" {
		if err := (store.DirStore{Root: storeDir}).Put(bundle); err != nil {
			return writeFailure(jsonOutput, err)
		}
	}

	output := scanOutput{
		OK:        true,
		OutDir:    outDir,
		BundleID:  bundle.BundleID,
		Documents: len(inputs),
		Findings:  len(result.Findings),
		Artifacts: len(result.Artifacts),
		Signed:    bundle.Signature != nil,
		StoreDir:  storeDir,
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("scan: %d documents, %d findings, bundle %s written to %s\n", output.Documents, output.Findings, output.BundleID, output.OutDir)
	return exitOK
}

// collectInputs reads every named file and every scannable file under named
// directories. Files inside a directory are named relative to it.
func collectInputs(paths []string) ([]scan.Input, error) {
	var inputs []scan.Input
	for _, target := range paths {
		info, err := os.Stat(target)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, coreerrors.NotFound(coreerrors.CodeFileNotFound, "%s not found", target)
			}
			return nil, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)
		}
		if !info.IsDir() {
			input, err := readInput(target, filepath.ToSlash(filepath.Clean(target)))
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, input)
			continue
		}
		var found []scan.Input
		walkErr := filepath.WalkDir(target, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || !scanExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, err := filepath.Rel(target, path)
			if err != nil {
				return err
			}
			input, err := readInput(path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			found = append(found, input)
			return nil
		})
		if walkErr != nil {
			if coreerrors.CategoryOf(walkErr) != "" {
				return nil, walkErr
			}
			return nil, coreerrors.Wrap(walkErr, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
		inputs = append(inputs, found...)
	}
	return inputs, nil
}

func readInput(path, name string) (scan.Input, error) {
	// #nosec G304 -- scan targets are operator supplied.
	content, err := os.ReadFile(path)
	if err != nil {
		return scan.Input{}, coreerrors.Wrap(fmt.Errorf("read %s: %w", path, err), coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)
	}
	return scan.Input{Name: name, Content: content}, nil
}
