package bottle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/porthole-app/porthole/filesystem"
)

type tarEntry struct {
	name string
	link string
	mode int64
	data []byte
}

// bottleArchive builds a gzipped tar the way brew publishes bottles:
// everything nested under <formula>/<version>/.
func bottleArchive(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		mode := entry.mode
		if mode == 0 {
			mode = 0o644
		}

		header := &tar.Header{Name: entry.name, Mode: mode}
		if entry.link != "" {
			header.Typeflag = tar.TypeSymlink
			header.Linkname = entry.link
		} else {
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(entry.data))
		}

		if err := tw.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if entry.link == "" {
			if _, err := tw.Write(entry.data); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func TestExtractArchive(t *testing.T) {
	Convey("Extracting a bottle archive", t, func() {
		fs := filesystem.API()
		libDir := "/staging/lib"
		So(fs.RemoveAll("/staging"), ShouldBeNil)
		So(fs.MkdirAll(libDir, 0o755), ShouldBeNil)

		write := func(archive []byte) string {
			target := "/staging/bottle.tar.gz"
			So(fs.WriteFile(target, archive, 0o644), ShouldBeNil)
			return target
		}

		Convey("flattens shared libraries and ignores everything else", func() {
			archive := bottleArchive(t,
				tarEntry{name: "mpv/0.38.0/lib/libmpv.2.dylib", mode: 0o755, data: []byte("image bytes")},
				tarEntry{name: "mpv/0.38.0/lib/libmpv.dylib", link: "libmpv.2.dylib"},
				tarEntry{name: "mpv/0.38.0/lib/pkgconfig/mpv.pc", data: []byte("prefix=/opt/homebrew")},
				tarEntry{name: "mpv/0.38.0/bin/mpv", mode: 0o755, data: []byte("launcher")},
				tarEntry{name: "mpv/0.38.0/share/man/man1/mpv.1", data: []byte("manual")},
			)

			So(extractArchive(write(archive), libDir), ShouldBeNil)

			entries, err := fs.ReadDir(libDir)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 2)

			data, err := fs.ReadFile(filepath.Join(libDir, "libmpv.2.dylib"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "image bytes")

			copied, err := fs.ReadFile(filepath.Join(libDir, "libmpv.dylib"))
			So(err, ShouldBeNil)
			So(string(copied), ShouldEqual, "image bytes")

			info, err := fs.Stat(filepath.Join(libDir, "libmpv.2.dylib"))
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, 0o755)
		})

		Convey("settles symlink chains and drops dangling ones", func() {
			archive := bottleArchive(t,
				tarEntry{name: "x/1/lib/liba.dylib", link: "libb.dylib"},
				tarEntry{name: "x/1/lib/libb.dylib", link: "libc.1.dylib"},
				tarEntry{name: "x/1/lib/libdangling.so", link: "libmissing.so.9"},
				tarEntry{name: "x/1/lib/libc.1.dylib", data: []byte("chain target")},
			)

			So(extractArchive(write(archive), libDir), ShouldBeNil)

			for _, leaf := range []string{"liba.dylib", "libb.dylib", "libc.1.dylib"} {
				data, err := fs.ReadFile(filepath.Join(libDir, leaf))
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "chain target")
			}

			exists, err := fs.Exists(filepath.Join(libDir, "libdangling.so"))
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)
		})

		Convey("the last of two colliding leaves wins", func() {
			archive := bottleArchive(t,
				tarEntry{name: "a/1/lib/libz.1.dylib", data: []byte("first")},
				tarEntry{name: "b/2/lib/libz.1.dylib", data: []byte("second")},
			)

			So(extractArchive(write(archive), libDir), ShouldBeNil)

			data, err := fs.ReadFile(filepath.Join(libDir, "libz.1.dylib"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "second")
		})

		Convey("rejects traversal entries", func() {
			archive := bottleArchive(t,
				tarEntry{name: "../escape.dylib", data: []byte("nope")},
			)

			err := extractArchive(write(archive), libDir)
			So(errors.Is(err, ErrExtractFailed), ShouldBeTrue)
		})

		Convey("rejects archives that are not gzipped tars", func() {
			err := extractArchive(write([]byte("plain text, no archive")), libDir)
			So(errors.Is(err, ErrExtractFailed), ShouldBeTrue)
		})

		Convey("accepts archives that carry no libraries at all", func() {
			archive := bottleArchive(t,
				tarEntry{name: "font/1/share/fonts/body.ttf", data: []byte("glyphs")},
			)

			So(extractArchive(write(archive), libDir), ShouldBeNil)

			entries, err := fs.ReadDir(libDir)
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})
	})
}
