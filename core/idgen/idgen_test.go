package idgen

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDIsUUIDv4(t *testing.T) {
	id, err := RequestID(nil)
	if err != nil {
		t.Fatalf("request id: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse uuid: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected v4, got %d", parsed.Version())
	}
}

func TestIdentifiersAreFreshPerCall(t *testing.T) {
	seen := map[string]struct{}{}
	for range 256 {
		id, err := RequestID(Crypto())
		if err != nil {
			t.Fatalf("request id: %v", err)
		}
		if _, exists := seen[id]; exists {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestDeterministicSourceReproducible(t *testing.T) {
	first, err := RecordID(Deterministic("seed"))
	if err != nil {
		t.Fatalf("record id: %v", err)
	}
	second, err := RecordID(Deterministic("seed"))
	if err != nil {
		t.Fatalf("record id: %v", err)
	}
	if first != second {
		t.Fatalf("expected same id for same seed: %s vs %s", first, second)
	}
	other, err := RecordID(Deterministic("other"))
	if err != nil {
		t.Fatalf("record id: %v", err)
	}
	if other == first {
		t.Fatalf("expected seed to change output")
	}
	if !strings.HasPrefix(first, "prov-") {
		t.Fatalf("unexpected record id prefix: %s", first)
	}
}

func TestDeterministicSourceAdvances(t *testing.T) {
	source := Deterministic("seed")
	a, _ := BundleID(source)
	b, _ := BundleID(source)
	if a == b {
		t.Fatalf("expected successive ids to differ")
	}
	if !strings.HasPrefix(a, "bundle-") {
		t.Fatalf("unexpected bundle id prefix: %s", a)
	}
}

func TestDeterministicSourceConcurrent(t *testing.T) {
	source := Deterministic("concurrent")
	var wg sync.WaitGroup
	ids := make([]string, 64)
	for index := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := RequestID(source)
			if err != nil {
				t.Errorf("request id: %v", err)
				return
			}
			ids[index] = id
		}()
	}
	wg.Wait()
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, exists := seen[id]; exists {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

type failingSource struct{}

func (failingSource) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestSourceErrorPropagates(t *testing.T) {
	if _, err := RequestID(failingSource{}); err == nil {
		t.Fatalf("expected error from failing source")
	}
}
