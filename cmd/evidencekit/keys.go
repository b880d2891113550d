package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/fsx"
	"github.com/davidahmann/evidencekit/core/idgen"
	"github.com/davidahmann/evidencekit/core/sign"
)

type keysInitOutput struct {
	OK             bool   `json:"ok"`
	KeyID          string `json:"key_id,omitempty"`
	PrivateKeyPath string `json:"private_key_path,omitempty"`
	PublicKeyPath  string `json:"public_key_path,omitempty"`
}

const privateKeyMode = 0o600

func runKeys(arguments []string) int {
	if len(arguments) == 0 || arguments[0] != "init" {
		printUsage()
		return exitInvalidInput
	}
	return runKeysInit(arguments[1:])
}

func runKeysInit(arguments []string) int {
	flagSet := pflag.NewFlagSet("keys init", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var outDir string
	var prefix string
	var force bool
	var jsonOutput bool

	flagSet.StringVar(&outDir, "out-dir", ".evidencekit/keys", "directory for the generated key files")
	flagSet.StringVar(&prefix, "prefix", "evidencekit", "key file name prefix")
	flagSet.BoolVar(&force, "force", false, "overwrite existing key files")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	if err := flagSet.Parse(arguments); err != nil {
		return writeFailure(jsonOutput, coreerrors.Validation("", "%v", err))
	}
	if prefix == "" || filepath.Base(prefix) != prefix {
		return writeFailure(jsonOutput, coreerrors.Validation("", "--prefix must be a plain file name"))
	}

	privatePath := filepath.Join(outDir, prefix+"_private.key")
	publicPath := filepath.Join(outDir, prefix+"_public.key")
	if !force {
		for _, candidate := range []string{privatePath, publicPath} {
			if _, err := os.Stat(candidate); err == nil {
				return writeFailure(jsonOutput, coreerrors.Validation("", "%s already exists; use --force to overwrite", candidate))
			}
		}
	}

	keys, err := sign.GenerateKeyPair(idgen.Crypto())
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	if err := fsx.WriteFileAtomic(privatePath, []byte(sign.EncodePrivateKey(keys.Private)+"\n"), privateKeyMode); err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true))
	}
	if err := fsx.WriteFileAtomic(publicPath, []byte(sign.EncodePublicKey(keys.Public)+"\n"), fsx.FileMode); err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true))
	}

	output := keysInitOutput{OK: true, KeyID: sign.KeyID(keys.Public), PrivateKeyPath: privatePath, PublicKeyPath: publicPath}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("keys init: %s\n", output.KeyID)
	fmt.Printf("  private: %s\n", privatePath)
	fmt.Printf("  public:  %s\n", publicPath)
	return exitOK
}
