package verify

import (
	"crypto/ed25519"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/sign"
)

// SealDigest is the digest a bundle signature covers: the canonical bundle with its
// signature removed.
func SealDigest(bundle schemaevidence.Bundle) (schemaevidence.Digest, error) {
	bundle.Signature = nil
	value, err := digest.Value(bundle)
	if err != nil {
		return schemaevidence.Digest{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidBundle, "", false)
	}
	return value, nil
}

// Seal returns a copy of bundle signed with priv.
func Seal(bundle schemaevidence.Bundle, priv ed25519.PrivateKey) (schemaevidence.Bundle, error) {
	value, err := SealDigest(bundle)
	if err != nil {
		return schemaevidence.Bundle{}, err
	}
	signature, err := sign.SignDigest(priv, value)
	if err != nil {
		return schemaevidence.Bundle{}, err
	}
	bundle.Signature = &signature
	return bundle, nil
}

// VerifySeal checks the bundle signature against pub over SealDigest.
func VerifySeal(bundle schemaevidence.Bundle, pub ed25519.PublicKey) error {
	if bundle.Signature == nil {
		return coreerrors.Integrity(coreerrors.CodeProvenanceVerificationFailed, "bundle %s is not signed", bundle.BundleID)
	}
	value, err := SealDigest(bundle)
	if err != nil {
		return err
	}
	return sign.VerifyDigest(pub, *bundle.Signature, value)
}
