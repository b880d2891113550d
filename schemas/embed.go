// Package schemas bundles the JSON schemas for every persisted evidencekit document.
package schemas

import "embed"

//go:embed v1
var Files embed.FS
