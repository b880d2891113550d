package sign

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
)

// KeyConfig names where keys come from. Each key may come from a file or an
// environment variable, never both.
type KeyConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	PrivateKeyEnv  string
	PublicKeyEnv   string
}

func (cfg KeyConfig) HasPrivateSource() bool {
	return cfg.PrivateKeyPath != "" || cfg.PrivateKeyEnv != ""
}

func (cfg KeyConfig) HasPublicSource() bool {
	return cfg.PublicKeyPath != "" || cfg.PublicKeyEnv != ""
}

// LoadSigningKey loads the private key and, when configured, checks the public key
// belongs to it.
func LoadSigningKey(cfg KeyConfig) (KeyPair, error) {
	priv, err := loadPrivateKey(cfg)
	if err != nil {
		return KeyPair{}, err
	}
	pub, _ := priv.Public().(ed25519.PublicKey)
	if cfg.HasPublicSource() {
		loaded, err := loadPublicKey(cfg)
		if err != nil {
			return KeyPair{}, err
		}
		if !loaded.Equal(pub) {
			return KeyPair{}, coreerrors.Validation("", "public key does not match private key")
		}
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// LoadVerifyKey prefers the public key source and falls back to deriving it from the
// private key.
func LoadVerifyKey(cfg KeyConfig) (ed25519.PublicKey, error) {
	if cfg.HasPublicSource() {
		return loadPublicKey(cfg)
	}
	if cfg.HasPrivateSource() {
		priv, err := loadPrivateKey(cfg)
		if err != nil {
			return nil, err
		}
		pub, _ := priv.Public().(ed25519.PublicKey)
		return pub, nil
	}
	return nil, coreerrors.Validation("", "verify key not configured")
}

func loadPrivateKey(cfg KeyConfig) (ed25519.PrivateKey, error) {
	encoded, err := readKeySource("private", cfg.PrivateKeyPath, cfg.PrivateKeyEnv)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKeyBase64(encoded)
}

func loadPublicKey(cfg KeyConfig) (ed25519.PublicKey, error) {
	encoded, err := readKeySource("public", cfg.PublicKeyPath, cfg.PublicKeyEnv)
	if err != nil {
		return nil, err
	}
	return ParsePublicKeyBase64(encoded)
}

func readKeySource(kind, path, env string) (string, error) {
	switch {
	case path != "" && env != "":
		return "", coreerrors.Validation("", "%s key source: set either path or env", kind)
	case path != "":
		// #nosec G304 -- key path is operator supplied
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", coreerrors.NotFound(coreerrors.CodeFileNotFound, "%s key %s not found", kind, path)
			}
			return "", coreerrors.Wrap(fmt.Errorf("read %s key: %w", kind, err), coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)
		}
		return string(raw), nil
	case env != "":
		value, ok := os.LookupEnv(env)
		if !ok || strings.TrimSpace(value) == "" {
			return "", coreerrors.Validation("", "%s key env not set: %s", kind, env)
		}
		return value, nil
	default:
		return "", coreerrors.Validation("", "%s key not configured", kind)
	}
}
