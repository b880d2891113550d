package sign

import (
	"os"
	"path/filepath"
	"testing"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
)

func TestLoadSigningKeyFromEnv(t *testing.T) {
	kp, _ := GenerateKeyPair(nil)
	t.Setenv("EVIDENCEKIT_PRIVATE_KEY", EncodePrivateKey(kp.Private))
	t.Setenv("EVIDENCEKIT_PUBLIC_KEY", EncodePublicKey(kp.Public))

	loaded, err := LoadSigningKey(KeyConfig{PrivateKeyEnv: "EVIDENCEKIT_PRIVATE_KEY", PublicKeyEnv: "EVIDENCEKIT_PUBLIC_KEY"})
	if err != nil {
		t.Fatalf("load signing key: %v", err)
	}
	if !loaded.Private.Equal(kp.Private) || !loaded.Public.Equal(kp.Public) {
		t.Fatalf("loaded keypair mismatch")
	}
}

func TestLoadSigningKeyMismatchedPublic(t *testing.T) {
	kp, _ := GenerateKeyPair(nil)
	other, _ := GenerateKeyPair(nil)
	t.Setenv("EVIDENCEKIT_PRIVATE_KEY", EncodePrivateKey(kp.Private))
	t.Setenv("EVIDENCEKIT_PUBLIC_KEY", EncodePublicKey(other.Public))
	if _, err := LoadSigningKey(KeyConfig{PrivateKeyEnv: "EVIDENCEKIT_PRIVATE_KEY", PublicKeyEnv: "EVIDENCEKIT_PUBLIC_KEY"}); err == nil {
		t.Fatalf("expected mismatched public key to fail")
	}
}

func TestLoadVerifyKeyFromFiles(t *testing.T) {
	workDir := t.TempDir()
	kp, _ := GenerateKeyPair(nil)
	privatePath := filepath.Join(workDir, "private.key")
	if err := os.WriteFile(privatePath, []byte(EncodePrivateKey(kp.Private)+"\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	pub, err := LoadVerifyKey(KeyConfig{PrivateKeyPath: privatePath})
	if err != nil {
		t.Fatalf("load verify key: %v", err)
	}
	if !pub.Equal(kp.Public) {
		t.Fatalf("derived public key mismatch")
	}

	if _, err := LoadVerifyKey(KeyConfig{PublicKeyPath: filepath.Join(workDir, "missing.key")}); coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := LoadVerifyKey(KeyConfig{}); err == nil {
		t.Fatalf("expected unconfigured key to fail")
	}
	if _, err := LoadSigningKey(KeyConfig{PrivateKeyPath: privatePath, PrivateKeyEnv: "X"}); err == nil {
		t.Fatalf("expected conflicting key sources to fail")
	}
}
