package findingid

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

func finding(file, rule, pointer, message string) schemaevidence.Finding {
	return schemaevidence.Finding{
		RuleID:   rule,
		Severity: "serious",
		Message:  message,
		Location: schemaevidence.Location{File: file, JSONPointer: pointer},
	}
}

func TestAssignOrdersByFile(t *testing.T) {
	forward := Assign([]schemaevidence.Finding{
		finding("a.html", "img-alt", "/nodes/1", "a"),
		finding("b.html", "img-alt", "/nodes/1", "b"),
	})
	reversed := Assign([]schemaevidence.Finding{
		finding("b.html", "img-alt", "/nodes/1", "b"),
		finding("a.html", "img-alt", "/nodes/1", "a"),
	})
	want := map[string]string{"a.html": "finding-0001", "b.html": "finding-0002"}
	for _, result := range [][]schemaevidence.Finding{forward, reversed} {
		got := map[string]string{}
		for _, item := range result {
			got[item.Location.File] = item.FindingID
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("unexpected mapping (-want +got):\n%s", diff)
		}
	}
}

func TestAssignSortKey(t *testing.T) {
	input := []schemaevidence.Finding{
		finding("a.html", "img-alt", "/nodes/10", "third"),
		finding("a.html", "html-lang", "/nodes/0", "first"),
		finding("a.html", "img-alt", "/nodes/2", "second"),
		finding("b.html", "html-lang", "", "fourth"),
	}
	result := Assign(input)
	got := make([]string, 0, len(result))
	for _, item := range result {
		got = append(got, item.FindingID+":"+item.Message)
	}
	want := []string{"finding-0001:first", "finding-0002:second", "finding-0003:third", "finding-0004:fourth"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if input[0].FindingID != "" {
		t.Fatalf("input must not be mutated")
	}
}

func TestAssignStableForIdenticalKeys(t *testing.T) {
	result := Assign([]schemaevidence.Finding{
		finding("a.html", "img-alt", "/nodes/3", "seen-first"),
		finding("a.html", "img-alt", "/nodes/3", "seen-second"),
	})
	if result[0].Message != "seen-first" || result[1].Message != "seen-second" {
		t.Fatalf("ties must preserve first-seen order: %+v", result)
	}
}

func TestAssignShuffleInvariant(t *testing.T) {
	var base []schemaevidence.Finding
	for _, file := range []string{"a.html", "b.html", "c.html"} {
		for _, rule := range []string{"html-lang", "img-alt"} {
			for _, pointer := range []string{"/nodes/0", "/nodes/4", "/nodes/12"} {
				base = append(base, finding(file, rule, pointer, file+rule+pointer))
			}
		}
	}
	expected := mapping(Assign(base))
	random := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := append([]schemaevidence.Finding(nil), base...)
		random.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if diff := cmp.Diff(expected, mapping(Assign(shuffled))); diff != "" {
			t.Fatalf("assignment changed under shuffle (-want +got):\n%s", diff)
		}
	}
}

func TestNodeIndex(t *testing.T) {
	cases := map[string]int{
		"/nodes/0":        0,
		"/nodes/7":        7,
		"/nodes/42/attrs": 42,
		"/dom/html/body":  0,
		"":                0,
		"/nodes/":         0,
		"/nodes/x":        0,
		"/nodes/0012":     12,
		"prefix/nodes/3":  0,
		"/nodes/5~1weird": 5,
	}
	for pointer, want := range cases {
		if got := NodeIndex(pointer); got != want {
			t.Fatalf("NodeIndex(%q) = %d, want %d", pointer, got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	if Format(1) != "finding-0001" {
		t.Fatalf("unexpected format: %s", Format(1))
	}
	if Format(12345) != "finding-12345" {
		t.Fatalf("unexpected wide format: %s", Format(12345))
	}
}

func mapping(findings []schemaevidence.Finding) map[string]string {
	out := make(map[string]string, len(findings))
	for _, item := range findings {
		out[item.Message] = item.FindingID
	}
	return out
}
