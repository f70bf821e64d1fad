// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/util"
)

// maxLibSize caps a single extracted library, guarding against decompression bombs.
const maxLibSize = 256 * 1024 * 1024

// libPattern matches shared library filenames, versioned or not.
var libPattern = regexp.MustCompile(`\.dylib$|\.so(\.\d+)*$`)

// extractArchive unpacks one bottle archive, flattening every shared
// library under a lib/ segment into libDir. Flattening is what makes the
// later load-path rewrite always fit: every inter-library reference
// becomes a short @loader_path sibling. Symlinked entries are
// materialized as copies, keeping the published tree link-free.
func extractArchive(archive, libDir string) error {
	fs := filesystem.API()

	f, err := fs.Open(archive)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}
	defer util.Ignore(f.Close)

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}
	defer util.Ignore(gzr.Close)

	links := make(map[string]string)
	extracted := 0

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s", ErrExtractFailed, err)
		}

		if err := rejectTraversal(header.Name); err != nil {
			return err
		}
		if !sharedLibrary(header.Name) {
			continue
		}

		leaf := filepath.Base(header.Name)
		switch header.Typeflag {
		case tar.TypeReg:
			dest := filepath.Join(libDir, leaf)
			if exists, _ := fs.Exists(dest); exists {
				log.Warnf("library %s collides across bottles, keeping the newest", leaf)
			}
			if err := writeCapped(dest, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
			extracted++
		case tar.TypeSymlink, tar.TypeLink:
			links[leaf] = filepath.Base(header.Linkname)
		}
	}

	if extracted == 0 && len(links) == 0 {
		// Data-only dependencies legitimately contribute nothing.
		log.Debugf("no shared libraries in %s", filepath.Base(archive))
	}

	return materializeLinks(libDir, links)
}

// sharedLibrary reports whether a tar entry is a shared library under a lib/ segment.
func sharedLibrary(name string) bool {
	clean := filepath.ToSlash(filepath.Clean(name))
	if !strings.Contains(clean, "/lib/") {
		return false
	}
	return libPattern.MatchString(filepath.Base(clean))
}

// rejectTraversal refuses absolute and parent-escaping archive entries.
func rejectTraversal(name string) error {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("%w: absolute path in archive: %s", ErrExtractFailed, name)
	}
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if part == ".." {
			return fmt.Errorf("%w: path traversal in archive: %s", ErrExtractFailed, name)
		}
	}
	return nil
}

// writeCapped streams an entry to disk, bounded by maxLibSize.
func writeCapped(dest string, r io.Reader, perm os.FileMode) error {
	fs := filesystem.API()
	if perm == 0 {
		perm = 0o644
	}

	out, err := fs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}

	written, err := io.CopyN(out, r, maxLibSize+1)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(dest)
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}
	if written > maxLibSize {
		_ = fs.Remove(dest)
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrExtractFailed, filepath.Base(dest), maxLibSize)
	}

	return nil
}

// materializeLinks copies resolved targets over their symlink names.
// Chains settle over multiple passes; anything still unresolved points
// outside the collected set and is dropped with a warning.
func materializeLinks(libDir string, links map[string]string) error {
	fs := filesystem.API()

	for pass := 0; pass <= len(links); pass++ {
		progressed := false

		for leaf, target := range links {
			if exists, _ := fs.Exists(filepath.Join(libDir, leaf)); exists {
				delete(links, leaf)
				progressed = true
				continue
			}

			data, err := fs.ReadFile(filepath.Join(libDir, target))
			if err != nil {
				continue
			}

			if err := fs.WriteFile(filepath.Join(libDir, leaf), data, 0o644); err != nil {
				return fmt.Errorf("%w: %s", ErrExtractFailed, err)
			}
			delete(links, leaf)
			progressed = true
		}

		if !progressed {
			break
		}
	}

	for leaf, target := range links {
		log.Warnf("symlink %s -> %s points outside the bottle, skipped", leaf, target)
	}

	return nil
}
