// Package fsx writes output files so readers never observe a partial write.
package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/davidahmann/evidencekit/core/jcs"
)

const (
	DirMode  os.FileMode = 0o750
	FileMode os.FileMode = 0o644
)

// WriteFileAtomic writes content to a temp file beside path and renames it into place.
// Missing parent directories are created.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, DirMode); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	tempFile, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	committed = true

	// #nosec G304 -- parent is derived from the caller's destination path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// WriteCanonicalJSON writes value in canonical JSON form followed by a newline.
func WriteCanonicalJSON(path string, value any) error {
	encoded, err := jcs.Canonicalize(value)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, append(encoded, '\n'), FileMode)
}
