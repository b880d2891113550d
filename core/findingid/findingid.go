// Package findingid assigns stable, sortable identifiers to findings.
package findingid

import (
	"fmt"
	"sort"
	"strings"

	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const (
	Prefix      = "finding-"
	nodesPrefix = "/nodes/"
)

// Assign orders findings by (file, rule_id, node index) and numbers them from 1.
// The sort is stable, so findings with an identical key keep first-seen order. The
// input slice is not modified.
func Assign(findings []schemaevidence.Finding) []schemaevidence.Finding {
	sorted := make([]schemaevidence.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		left, right := sorted[i], sorted[j]
		if left.Location.File != right.Location.File {
			return left.Location.File < right.Location.File
		}
		if left.RuleID != right.RuleID {
			return left.RuleID < right.RuleID
		}
		return NodeIndex(left.Location.JSONPointer) < NodeIndex(right.Location.JSONPointer)
	})
	for index := range sorted {
		sorted[index].FindingID = Format(index + 1)
	}
	return sorted
}

// NodeIndex extracts the numeric segment following "/nodes/". Pointers without one
// sort as index 0.
func NodeIndex(pointer string) int {
	rest, ok := strings.CutPrefix(pointer, nodesPrefix)
	if !ok {
		return 0
	}
	index := 0
	digits := 0
	for _, char := range rest {
		if char < '0' || char > '9' {
			break
		}
		index = index*10 + int(char-'0')
		digits++
		if digits > 9 {
			break
		}
	}
	return index
}

// Format renders a 1-based sequence number as a finding id.
func Format(sequence int) string {
	return fmt.Sprintf("%s%04d", Prefix, sequence)
}
