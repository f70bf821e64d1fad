// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"bytes"
	"debug/macho"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/porthole-app/porthole/filesystem"
)

// Loader checks that a published library is actually loadable. The
// default implementation is structural; tests and platform builds swap
// in their own.
type Loader interface {
	CanLoad(file, installDir string) error
}

// structuralLoader parses the image and checks that every non-system
// import resolves inside the install tree. It never loads code, so a
// broken library cannot take the process down during a probe.
type structuralLoader struct{}

func (structuralLoader) CanLoad(file, installDir string) error {
	data, err := filesystem.API().ReadFile(file)
	if err != nil {
		return err
	}

	image, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(file), err)
	}

	imports, err := image.ImportedLibraries()
	if err != nil {
		return fmt.Errorf("imports of %s: %w", filepath.Base(file), err)
	}

	fs := filesystem.API()
	for _, ref := range imports {
		if systemRef(ref) {
			continue
		}

		leaf := path.Base(ref)
		exists, err := fs.Exists(filepath.Join(installDir, "lib", leaf))
		if err != nil || !exists {
			return fmt.Errorf("%s references %s which is missing from the install", filepath.Base(file), leaf)
		}
	}

	return nil
}

// systemRef reports whether a load path resolves through the OS itself.
func systemRef(ref string) bool {
	return strings.HasPrefix(ref, "/usr/lib/") || strings.HasPrefix(ref, "/System/")
}

// primaryLibName locates the formula's own shared library among the
// flattened closure, preferring the shortest lib<formula>* match so
// unversioned names win over versioned ones.
func primaryLibName(libDir, formula string) (string, error) {
	entries, err := filesystem.API().ReadDir(libDir)
	if err != nil {
		return "", err
	}

	prefix := "lib" + formula
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasPrefix(name, prefix) && libPattern.MatchString(name) {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no lib%s shared library in the bottle closure", formula)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	return candidates[0], nil
}
