// Package filesystem provides a virtualized abstraction layer for all filesystem operations.
//
// It utilizes the afero library to allow seamless switching between OS-level and in-memory filesystem backends.
package filesystem

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

var backend = afero.Afero{Fs: afero.NewOsFs()}

// API returns the active afero.Afero instance for filesystem interaction.
func API() afero.Afero {
	return backend
}

// SetOsFs restores the filesystem backend to the native operating system implementation.
func SetOsFs() {
	backend = afero.Afero{Fs: afero.NewOsFs()}
}

// SetMemMapFs initializes a volatile in-memory filesystem backend for unit testing and CI environments.
func SetMemMapFs() {
	backend = afero.Afero{Fs: afero.NewMemMapFs()}
}

// MoveDir relocates a directory tree onto dst.
//
// A single rename is attempted first. Backends that cannot rename across
// devices (or at all) fall back to a recursive copy followed by removal
// of the source tree.
func MoveDir(src, dst string) error {
	fs := API()

	if err := fs.Rename(src, dst); err == nil {
		return nil
	}

	err := fs.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, 0o755)
		}

		data, err := fs.ReadFile(path)
		if err != nil {
			return err
		}

		return fs.WriteFile(target, data, info.Mode().Perm())
	})
	if err != nil {
		return err
	}

	return fs.RemoveAll(src)
}
