package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".evidencekit/config.yaml"

const (
	DefaultParallelism = 4
	DefaultOutDir      = "evidencekit-out"
)

type Config struct {
	Agent   AgentDefaults   `yaml:"agent"`
	Capture CaptureDefaults `yaml:"capture"`
	Scan    ScanDefaults    `yaml:"scan"`
	Verify  VerifyDefaults  `yaml:"verify"`
	Signing SigningDefaults `yaml:"signing"`
}

type AgentDefaults struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CaptureDefaults struct {
	EnforceUniqueArtifactIDs bool `yaml:"enforce_unique_artifact_ids"`
}

type ScanDefaults struct {
	Parallelism int    `yaml:"parallelism"`
	OutDir      string `yaml:"out_dir"`
	Summary     *bool  `yaml:"summary"`
}

type VerifyDefaults struct {
	StrictMethods bool `yaml:"strict_methods"`
}

type SigningDefaults struct {
	PrivateKey    string `yaml:"private_key"` // #nosec G117 -- config key name documents expected secret input.
	PrivateKeyEnv string `yaml:"private_key_env"`
	PublicKey     string `yaml:"public_key"`
	PublicKeyEnv  string `yaml:"public_key_env"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var configuration Config
	configuration.normalize()
	return configuration
}

// Load reads a YAML project config. With allowMissing a missing file yields the
// defaults.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Default(), nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	if configuration.Scan.Parallelism < 0 {
		return Config{}, fmt.Errorf("scan.parallelism must not be negative")
	}
	configuration.normalize()
	return configuration, nil
}

// SummaryEnabled reports whether scans attach a session summary record.
func (configuration Config) SummaryEnabled() bool {
	return configuration.Scan.Summary == nil || *configuration.Scan.Summary
}

func (configuration *Config) normalize() {
	configuration.Agent.Name = strings.TrimSpace(configuration.Agent.Name)
	configuration.Agent.Version = strings.TrimSpace(configuration.Agent.Version)
	configuration.Scan.OutDir = strings.TrimSpace(configuration.Scan.OutDir)
	if configuration.Scan.OutDir == "" {
		configuration.Scan.OutDir = DefaultOutDir
	}
	if configuration.Scan.Parallelism == 0 {
		configuration.Scan.Parallelism = DefaultParallelism
	}
	configuration.Signing.PrivateKey = strings.TrimSpace(configuration.Signing.PrivateKey)
	configuration.Signing.PrivateKeyEnv = strings.TrimSpace(configuration.Signing.PrivateKeyEnv)
	configuration.Signing.PublicKey = strings.TrimSpace(configuration.Signing.PublicKey)
	configuration.Signing.PublicKeyEnv = strings.TrimSpace(configuration.Signing.PublicKeyEnv)
}
