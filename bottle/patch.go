// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/log"
)

// Load commands addressed during patching that debug/macho does not name.
const (
	loadCmdIdDylib       = 0xd
	loadCmdWeakDylib     = 0x80000018
	loadCmdReexportDylib = 0x8000001f
	loadCmdLazyDylib     = 0x20
	loadCmdUpwardDylib   = 0x80000023
)

const (
	machoHeaderLen = 32
	machoNcmdsOff  = 16
	machoSizeofOff = 20
	lcStrFieldOff  = 8
)

// brewPrefixes are the install roots Homebrew bakes into bottle
// binaries, including the relocation placeholders unpoured bottles carry.
var brewPrefixes = []string{
	"@@HOMEBREW_PREFIX@@/",
	"@@HOMEBREW_CELLAR@@/",
	"/opt/homebrew/",
	"/usr/local/",
	"/home/linuxbrew/.linuxbrew/",
}

// PatchLoadPaths rewrites the Homebrew install paths baked into a 64-bit
// Mach-O image so its references resolve inside installBase instead.
// Dependency references become @loader_path siblings, run-path entries
// collapse to @loader_path and the image identity moves under
// installBase. Every rewrite happens in place within the load command's
// existing space. Reports whether the file changed; errNotMachO marks
// files the patcher does not apply to.
func PatchLoadPaths(file, installBase string) (bool, error) {
	fs := filesystem.API()

	data, err := fs.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrPatchFailed, err)
	}

	if len(data) < machoHeaderLen || binary.LittleEndian.Uint32(data) != macho.Magic64 {
		return false, errNotMachO
	}

	ncmds := int(binary.LittleEndian.Uint32(data[machoNcmdsOff:]))
	sizeofcmds := int(binary.LittleEndian.Uint32(data[machoSizeofOff:]))
	cmdsEnd := machoHeaderLen + sizeofcmds
	if cmdsEnd > len(data) {
		return false, fmt.Errorf("%w: %s: load commands past end of file", ErrPatchFailed, filepath.Base(file))
	}

	changed := false
	offset := machoHeaderLen

	for i := 0; i < ncmds; i++ {
		if offset+8 > cmdsEnd {
			return false, fmt.Errorf("%w: %s: truncated load command %d", ErrPatchFailed, filepath.Base(file), i)
		}

		cmd := binary.LittleEndian.Uint32(data[offset:])
		cmdsize := int(binary.LittleEndian.Uint32(data[offset+4:]))
		if cmdsize < 8 || offset+cmdsize > cmdsEnd {
			return false, fmt.Errorf("%w: %s: load command %d overruns", ErrPatchFailed, filepath.Base(file), i)
		}

		var rewrite func(ref string, avail int) (string, bool)
		switch macho.LoadCmd(cmd) {
		case macho.LoadCmdDylib, loadCmdWeakDylib, loadCmdReexportDylib, loadCmdLazyDylib, loadCmdUpwardDylib:
			rewrite = dependencyRewrite
		case loadCmdIdDylib:
			rewrite = identityRewrite(installBase)
		case macho.LoadCmdRpath:
			rewrite = runPathRewrite
		default:
			offset += cmdsize
			continue
		}

		patched, err := patchString(data[offset:offset+cmdsize], rewrite)
		if err != nil {
			return false, fmt.Errorf("%w: %s: load command %d: %s", ErrPatchFailed, filepath.Base(file), i, err)
		}

		changed = changed || patched
		offset += cmdsize
	}

	if !changed {
		return false, nil
	}

	info, err := fs.Stat(file)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrPatchFailed, err)
	}
	if err := fs.WriteFile(file, data, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("%w: %s", ErrPatchFailed, err)
	}

	return true, nil
}

// patchString rewrites the NUL-terminated path of a single load command
// in place. The replacement must fit the space between the string offset
// and the end of the command; load commands are never resized.
func patchString(cmd []byte, rewrite func(ref string, avail int) (string, bool)) (bool, error) {
	if len(cmd) < lcStrFieldOff+4 {
		return false, errors.New("no room for a string offset")
	}

	strOff := int(binary.LittleEndian.Uint32(cmd[lcStrFieldOff:]))
	if strOff < lcStrFieldOff+4 || strOff >= len(cmd) {
		return false, fmt.Errorf("string offset %d out of bounds", strOff)
	}

	field := cmd[strOff:]
	ref := string(field)
	if i := bytes.IndexByte(field, 0); i >= 0 {
		ref = string(field[:i])
	}

	replacement, ok := rewrite(ref, len(field))
	if !ok || replacement == ref {
		return false, nil
	}
	if len(replacement) >= len(field) {
		return false, fmt.Errorf("%s does not fit over %s", replacement, ref)
	}

	copy(field, replacement)
	for i := len(replacement); i < len(field); i++ {
		field[i] = 0
	}

	return true, nil
}

// dependencyRewrite points a Homebrew dylib reference at the flattened
// sibling next to the loading image.
func dependencyRewrite(ref string, _ int) (string, bool) {
	if !brewRef(ref) {
		return "", false
	}
	return "@loader_path/" + path.Base(ref), true
}

// identityRewrite moves the image identity under the install root,
// falling back to a @loader_path form when the absolute path is too long
// for the command.
func identityRewrite(installBase string) func(ref string, avail int) (string, bool) {
	return func(ref string, avail int) (string, bool) {
		if !brewRef(ref) {
			return "", false
		}

		leaf := path.Base(ref)
		if abs := filepath.Join(installBase, "lib", leaf); len(abs) < avail {
			return abs, true
		}
		return "@loader_path/" + leaf, true
	}
}

// runPathRewrite collapses Homebrew run-path entries to the image's own
// directory, which is where extraction flattened every library.
func runPathRewrite(ref string, _ int) (string, bool) {
	if ref == "@loader_path" {
		return "", false
	}
	if !brewRef(ref) && !strings.HasPrefix(ref, "@loader_path/") {
		return "", false
	}
	return "@loader_path", true
}

func brewRef(ref string) bool {
	for _, prefix := range brewPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// patchTree patches every file in libDir, returning how many images
// changed. Non-Mach-O files are left alone: Linux bottles carry ELF
// libraries the loader resolves through LD_LIBRARY_PATH instead.
func patchTree(libDir, installBase string) (int, error) {
	entries, err := filesystem.API().ReadDir(libDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrPatchFailed, err)
	}

	patched := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		file := filepath.Join(libDir, entry.Name())
		changed, err := PatchLoadPaths(file, installBase)
		switch {
		case errors.Is(err, errNotMachO):
			log.Debugf("skipping %s: not a 64-bit Mach-O image", entry.Name())
		case err != nil:
			return patched, err
		case changed:
			patched++
		}
	}

	return patched, nil
}
