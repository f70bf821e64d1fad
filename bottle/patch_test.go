package bottle

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/porthole-app/porthole/filesystem"
)

var le = binary.LittleEndian

// dylibCommand encodes a dylib load command with the reference string at
// the conventional offset 24, padded to 8-byte alignment.
func dylibCommand(cmd uint32, ref string) []byte {
	size := (24 + len(ref) + 1 + 7) &^ 7
	buf := make([]byte, size)
	le.PutUint32(buf[0:], cmd)
	le.PutUint32(buf[4:], uint32(size))
	le.PutUint32(buf[8:], 24)
	copy(buf[24:], ref)
	return buf
}

// rpathCommand encodes a run-path command with the path at offset 12.
func rpathCommand(ref string) []byte {
	size := (12 + len(ref) + 1 + 7) &^ 7
	buf := make([]byte, size)
	le.PutUint32(buf[0:], uint32(macho.LoadCmdRpath))
	le.PutUint32(buf[4:], uint32(size))
	le.PutUint32(buf[8:], 12)
	copy(buf[12:], ref)
	return buf
}

// machoImage assembles a minimal 64-bit dylib image debug/macho can parse.
func machoImage(commands ...[]byte) []byte {
	var body []byte
	for _, command := range commands {
		body = append(body, command...)
	}

	header := make([]byte, machoHeaderLen)
	le.PutUint32(header[0:], macho.Magic64)
	le.PutUint32(header[4:], uint32(macho.CpuAmd64))
	le.PutUint32(header[8:], 3)
	le.PutUint32(header[12:], 6) // MH_DYLIB
	le.PutUint32(header[16:], uint32(len(commands)))
	le.PutUint32(header[20:], uint32(len(body)))

	return append(header, body...)
}

func TestPatchLoadPaths(t *testing.T) {
	Convey("Patching a dylib image", t, func() {
		fs := filesystem.API()
		So(fs.RemoveAll("/fixtures"), ShouldBeNil)
		So(fs.MkdirAll("/fixtures", 0o755), ShouldBeNil)

		base := "/porthole/engine"
		image := machoImage(
			dylibCommand(uint32(loadCmdIdDylib), "@@HOMEBREW_PREFIX@@/lib/libmpv.2.dylib"),
			dylibCommand(uint32(macho.LoadCmdDylib), "/usr/lib/libSystem.B.dylib"),
			dylibCommand(uint32(macho.LoadCmdDylib), "/opt/homebrew/opt/libplacebo/lib/libplacebo.338.dylib"),
			rpathCommand("@@HOMEBREW_PREFIX@@/lib"),
		)

		file := "/fixtures/libmpv.2.dylib"
		So(fs.WriteFile(file, image, 0o755), ShouldBeNil)

		Convey("rewrites Homebrew references in place", func() {
			changed, err := PatchLoadPaths(file, base)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)

			data, err := fs.ReadFile(file)
			So(err, ShouldBeNil)
			So(len(data), ShouldEqual, len(image))
			So(bytes.Contains(data, []byte("@@HOMEBREW")), ShouldBeFalse)

			parsed, err := macho.NewFile(bytes.NewReader(data))
			So(err, ShouldBeNil)

			imports, err := parsed.ImportedLibraries()
			So(err, ShouldBeNil)
			So(imports, ShouldContain, "/usr/lib/libSystem.B.dylib")
			So(imports, ShouldContain, "@loader_path/libplacebo.338.dylib")

			So(bytes.Contains(data, []byte(filepath.Join(base, "lib", "libmpv.2.dylib"))), ShouldBeTrue)

			var rpaths []string
			for _, load := range parsed.Loads {
				if rpath, ok := load.(*macho.Rpath); ok {
					rpaths = append(rpaths, rpath.Path)
				}
			}
			So(rpaths, ShouldResemble, []string{"@loader_path"})

			info, err := fs.Stat(file)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, 0o755)

			Convey("and a second pass finds nothing left to rewrite", func() {
				changed, err := PatchLoadPaths(file, base)
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
			})
		})

		Convey("falls back to @loader_path when the absolute identity does not fit", func() {
			deep := "/" + strings.Repeat("n", 80)
			changed, err := PatchLoadPaths(file, deep)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)

			data, err := fs.ReadFile(file)
			So(err, ShouldBeNil)
			So(bytes.Contains(data, []byte("@loader_path/libmpv.2.dylib")), ShouldBeTrue)
		})

		Convey("refuses files that are not 64-bit Mach-O images", func() {
			fixtures := map[string][]byte{
				"elf.so":        append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 60)...),
				"macho32.dylib": append([]byte{0xce, 0xfa, 0xed, 0xfe}, make([]byte, 60)...),
				"fat.dylib":     append([]byte{0xca, 0xfe, 0xba, 0xbe}, make([]byte, 60)...),
				"tiny.dylib":    {0x00, 0x01},
			}

			for name, payload := range fixtures {
				target := filepath.Join("/fixtures", name)
				So(fs.WriteFile(target, payload, 0o644), ShouldBeNil)

				changed, err := PatchLoadPaths(target, base)
				So(changed, ShouldBeFalse)
				So(errors.Is(err, errNotMachO), ShouldBeTrue)
			}
		})

		Convey("fails on load commands running past the end of the file", func() {
			truncated := make([]byte, len(image))
			copy(truncated, image)
			le.PutUint32(truncated[machoSizeofOff:], uint32(len(truncated)))
			So(fs.WriteFile(file, truncated, 0o644), ShouldBeNil)

			_, err := PatchLoadPaths(file, base)
			So(errors.Is(err, ErrPatchFailed), ShouldBeTrue)
		})

		Convey("fails when a rewrite cannot fit the command", func() {
			cramped := machoImage(dylibCommand(uint32(macho.LoadCmdDylib), "/usr/local/armadillo.ab"))
			So(fs.WriteFile(file, cramped, 0o644), ShouldBeNil)

			_, err := PatchLoadPaths(file, base)
			So(errors.Is(err, ErrPatchFailed), ShouldBeTrue)
		})
	})
}

func TestPatchTree(t *testing.T) {
	Convey("Patching a library directory", t, func() {
		fs := filesystem.API()
		libDir := "/tree/lib"
		So(fs.RemoveAll("/tree"), ShouldBeNil)
		So(fs.MkdirAll(libDir, 0o755), ShouldBeNil)

		image := machoImage(dylibCommand(uint32(macho.LoadCmdDylib), "/opt/homebrew/opt/zlib/lib/libz.1.dylib"))
		So(fs.WriteFile(filepath.Join(libDir, "libmujs.dylib"), image, 0o755), ShouldBeNil)
		So(fs.WriteFile(filepath.Join(libDir, "libelf.so.1"), append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 40)...), 0o755), ShouldBeNil)
		So(fs.WriteFile(filepath.Join(libDir, "notes.txt"), []byte("not a library"), 0o644), ShouldBeNil)

		Convey("patches Mach-O images and skips the rest", func() {
			patched, err := patchTree(libDir, "/porthole/engine")
			So(err, ShouldBeNil)
			So(patched, ShouldEqual, 1)

			data, err := fs.ReadFile(filepath.Join(libDir, "libmujs.dylib"))
			So(err, ShouldBeNil)
			So(bytes.Contains(data, []byte("@loader_path/libz.1.dylib")), ShouldBeTrue)
		})

		Convey("propagates rewrite failures", func() {
			cramped := machoImage(dylibCommand(uint32(macho.LoadCmdDylib), "/usr/local/armadillo.ab"))
			So(fs.WriteFile(filepath.Join(libDir, "libbad.dylib"), cramped, 0o755), ShouldBeNil)

			_, err := patchTree(libDir, "/porthole/engine")
			So(errors.Is(err, ErrPatchFailed), ShouldBeTrue)
		})
	})
}
