// Package storage defines the rooted file-system abstraction used for the
// uploads namespace and the content directory.
package storage

import (
	"io/fs"
	"time"
)

// FileMeta is a lightweight description of a stored file.
type FileMeta struct {
	Path    string    `json:"path"` // slash-separated, relative to root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Provider is the interface for rooted file operations. Every path is
// relative to the root and is rejected if it resolves outside it.
type Provider interface {
	// List returns metadata for every regular file under dir.
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes path and everything below it.
	RemoveAll(path string) error
	// Move relocates oldPath to newPath without overwriting newPath.
	Move(oldPath, newPath string) error
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Abs resolves path to an absolute location inside the root.
	Abs(path string) (string, error)
}
