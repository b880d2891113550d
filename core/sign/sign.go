// Package sign seals digests with ed25519.
package sign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/idgen"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const AlgEd25519 = "ed25519"

type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair draws a key from random, or from crypto/rand when random is nil.
func GenerateKeyPair(random idgen.Source) (KeyPair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(idgen.Or(random), seed); err != nil {
		return KeyPair{}, coreerrors.Internal(fmt.Errorf("generate ed25519 key: %w", err))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, _ := priv.Public().(ed25519.PublicKey)
	return KeyPair{Public: pub, Private: priv}, nil
}

// KeyID is the sha256 hex of the public key.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// SignDigest signs the raw bytes of a sha256 digest.
func SignDigest(priv ed25519.PrivateKey, value schemaevidence.Digest) (schemaevidence.Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return schemaevidence.Signature{}, coreerrors.Validation("", "invalid private key length: %d", len(priv))
	}
	if err := digest.Validate(value); err != nil {
		return schemaevidence.Signature{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidInput, "", false)
	}
	raw, _ := hex.DecodeString(value.Hex)
	pub, _ := priv.Public().(ed25519.PublicKey)
	return schemaevidence.Signature{
		Alg:          AlgEd25519,
		KeyID:        KeyID(pub),
		Sig:          base64.StdEncoding.EncodeToString(ed25519.Sign(priv, raw)),
		SignedDigest: value.Hex,
	}, nil
}

// VerifyDigest checks sig against pub and the expected digest. A signature over a
// different digest is an integrity failure.
func VerifyDigest(pub ed25519.PublicKey, sig schemaevidence.Signature, expected schemaevidence.Digest) error {
	if sig.Alg != AlgEd25519 {
		return coreerrors.Validation("", "unsupported signature alg: %q", sig.Alg)
	}
	if len(pub) != ed25519.PublicKeySize {
		return coreerrors.Validation("", "invalid public key length: %d", len(pub))
	}
	if sig.KeyID != "" && sig.KeyID != KeyID(pub) {
		return coreerrors.Integrity(coreerrors.CodeProvenanceVerificationFailed, "signature key id %s does not match verify key", sig.KeyID)
	}
	if sig.SignedDigest != expected.Hex {
		return coreerrors.Integrity(coreerrors.CodeDigestMismatch, "signature covers %s, bundle digest is %s", sig.SignedDigest, expected.Hex)
	}
	raw, err := hex.DecodeString(expected.Hex)
	if err != nil || len(raw) != sha256.Size {
		return coreerrors.Validation("", "invalid digest hex %q", expected.Hex)
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig.Sig)
	if err != nil {
		return coreerrors.Validation("", "decode signature: %v", err)
	}
	if len(rawSig) != ed25519.SignatureSize {
		return coreerrors.Validation("", "invalid signature length: %d", len(rawSig))
	}
	if !ed25519.Verify(pub, raw, rawSig) {
		return coreerrors.Integrity(coreerrors.CodeProvenanceVerificationFailed, "signature does not verify")
	}
	return nil
}

// ParsePrivateKeyBase64 decodes a standard base64 ed25519 private key.
func ParsePrivateKeyBase64(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(encoded))))
	if err != nil {
		return nil, coreerrors.Validation("", "decode private key: %v", err)
	}
	if l := len(raw); l != ed25519.PrivateKeySize {
		return nil, coreerrors.Validation("", "invalid private key length: %d", l)
	}
	return ed25519.PrivateKey(raw), nil
}

// ParsePublicKeyBase64 decodes a standard base64 ed25519 public key.
func ParsePublicKeyBase64(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(encoded))))
	if err != nil {
		return nil, coreerrors.Validation("", "decode public key: %v", err)
	}
	if l := len(raw); l != ed25519.PublicKeySize {
		return nil, coreerrors.Validation("", "invalid public key length: %d", l)
	}
	return ed25519.PublicKey(raw), nil
}

func EncodePrivateKey(priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv)
}

func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}
