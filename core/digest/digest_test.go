package digest

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/davidahmann/evidencekit/core/jcs"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

func TestBytesKnownVector(t *testing.T) {
	got := Bytes([]byte("abc"))
	if got.Alg != "sha256" {
		t.Fatalf("unexpected alg: %s", got.Alg)
	}
	if got.Hex != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected hex: %s", got.Hex)
	}
	if !ValidHex(got.Hex) {
		t.Fatalf("expected 64 lowercase hex characters")
	}
}

func TestValueOrderIndependent(t *testing.T) {
	a, err := Value(map[string]any{"z": 1, "a": 2, "m": 3})
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	b, err := Value(map[string]any{"m": 3, "z": 1, "a": 2})
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical digests: %s vs %s", a.Hex, b.Hex)
	}
	if a != Bytes([]byte(`{"a":2,"m":3,"z":1}`)) {
		t.Fatalf("structured digest must hash the canonical string")
	}
}

func TestJSONMatchesValue(t *testing.T) {
	fromJSON, err := JSON([]byte(`{ "b": [1, 2], "a": "x" }`))
	if err != nil {
		t.Fatalf("digest json: %v", err)
	}
	fromValue, err := Value(map[string]any{"a": "x", "b": []any{1, 2}})
	if err != nil {
		t.Fatalf("digest value: %v", err)
	}
	if fromJSON != fromValue {
		t.Fatalf("json and value digests differ")
	}
}

func TestValueRejectsBeforeDigest(t *testing.T) {
	got, err := Value(map[string]any{"x": math.NaN()})
	var nonFinite *jcs.NonFiniteNumberError
	if !errors.As(err, &nonFinite) {
		t.Fatalf("expected NonFiniteNumberError, got %v", err)
	}
	if got != (schemaevidence.Digest{}) {
		t.Fatalf("expected zero digest, got %+v", got)
	}

	got, err = Value(map[string]any{"f": func() {}})
	var unsupported *jcs.UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if got != (schemaevidence.Digest{}) {
		t.Fatalf("expected zero digest, got %+v", got)
	}
}

func TestVerify(t *testing.T) {
	content := []byte("<html><img src=x.png></html>")
	computed := Bytes(content)
	if !Verify(content, computed.Hex) {
		t.Fatalf("expected verify to pass")
	}
	if !Verify(content, strings.ToUpper(computed.Hex)) {
		t.Fatalf("expected case-insensitive expected hex")
	}
	tampered := append([]byte(nil), content...)
	tampered[0] ^= 0x01
	if Verify(tampered, computed.Hex) {
		t.Fatalf("expected verify to fail after single byte change")
	}
	if Verify(content, "not-hex") {
		t.Fatalf("malformed hex must never verify")
	}
}

func TestVerifyValue(t *testing.T) {
	value := map[string]any{"a": 1}
	computed, err := Value(value)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	ok, err := VerifyValue(value, computed.Hex)
	if err != nil || !ok {
		t.Fatalf("expected verify value pass, ok=%v err=%v", ok, err)
	}
	flipped := flipLast(computed.Hex)
	ok, err = VerifyValue(value, flipped)
	if err != nil || ok {
		t.Fatalf("expected verify value mismatch, ok=%v err=%v", ok, err)
	}
	if _, err := VerifyValue(math.Inf(1), computed.Hex); err == nil {
		t.Fatalf("expected canonicalization error")
	}
}

func TestProvTranslation(t *testing.T) {
	computed := Bytes([]byte("x"))
	prov := ToProv(computed)
	if prov.Algorithm != computed.Alg || prov.Value != computed.Hex {
		t.Fatalf("unexpected prov digest: %+v", prov)
	}
	if FromProv(prov) != computed {
		t.Fatalf("translation must round trip")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Bytes([]byte("x"))); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := Validate(schemaevidence.Digest{Alg: "md5", Hex: Bytes(nil).Hex}); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
	if err := Validate(schemaevidence.Digest{Alg: "sha256", Hex: "ABC"}); err == nil {
		t.Fatalf("expected malformed hex error")
	}
}

func flipLast(value string) string {
	last := value[len(value)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	return value[:len(value)-1] + string(replacement)
}
