package util

import (
	"regexp"
	"testing"

	"github.com/porthole-app/porthole/filesystem"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSanitizeFilename(t *testing.T) {
	Convey("SanitizeFilename", t, func() {
		Convey("Should replace invalid chars", func() {
			So(SanitizeFilename("stream:1080p?.mp4"), ShouldEqual, "stream_1080p_.mp4")
		})
		Convey("Should collapse underscores", func() {
			So(SanitizeFilename("mpv  0.38.0.tar.gz"), ShouldEqual, "mpv_0.38.0.tar.gz")
		})
		Convey("Should trim separators", func() {
			So(SanitizeFilename("-engine-name-"), ShouldEqual, "engine-name")
		})
	})
}

func TestQuantify(t *testing.T) {
	Convey("Quantify", t, func() {
		So(Quantify(1, "stream", "streams"), ShouldEqual, "1 stream")
		So(Quantify(2, "stream", "streams"), ShouldEqual, "2 streams")
	})
}

func TestCapitalize(t *testing.T) {
	Convey("Capitalize", t, func() {
		So(Capitalize("installed"), ShouldEqual, "Installed")
		So(Capitalize(""), ShouldEqual, "")
	})
}

func TestReGroups(t *testing.T) {
	Convey("ReGroups", t, func() {
		re := regexp.MustCompile(`(?P<height>\d+)(?P<suffix>p)`)
		groups := ReGroups(re, "1080p")
		So(groups["height"], ShouldEqual, "1080")
		So(groups["suffix"], ShouldEqual, "p")

		Convey("Returns an empty map on no match", func() {
			So(ReGroups(re, "unknown"), ShouldBeEmpty)
		})
	})
}

func TestFileStem(t *testing.T) {
	Convey("FileStem", t, func() {
		So(FileStem("translators/invidious.lua"), ShouldEqual, "invidious")
		So(FileStem("plain"), ShouldEqual, "plain")
	})
}

func TestMaxMin(t *testing.T) {
	Convey("Max/Min", t, func() {
		So(Max(480, 2160, 1080), ShouldEqual, 2160)
		So(Min(480, 2160, 1080), ShouldEqual, 480)
	})
}

func TestHumanBytes(t *testing.T) {
	Convey("HumanBytes", t, func() {
		So(HumanBytes(512), ShouldEqual, "512 B")
		So(HumanBytes(2048), ShouldEqual, "2.0 KiB")
		So(HumanBytes(5*1024*1024+512*1024), ShouldEqual, "5.5 MiB")
		So(HumanBytes(3*1024*1024*1024), ShouldEqual, "3.0 GiB")
	})
}

func TestDelete(t *testing.T) {
	Convey("Delete", t, func() {
		fs := filesystem.API()

		Convey("Removes a file", func() {
			So(fs.WriteFile("receipt.json", []byte("{}"), 0o644), ShouldBeNil)
			So(Delete("receipt.json"), ShouldBeNil)
			exists, _ := fs.Exists("receipt.json")
			So(exists, ShouldBeFalse)
		})

		Convey("Removes a directory tree", func() {
			So(fs.MkdirAll("engine/lib", 0o755), ShouldBeNil)
			So(Delete("engine"), ShouldBeNil)
			exists, _ := fs.DirExists("engine")
			So(exists, ShouldBeFalse)
		})

		Convey("Errors on a missing path", func() {
			So(Delete("missing"), ShouldNotBeNil)
		})
	})
}

func TestStack(t *testing.T) {
	Convey("Stack", t, func() {
		var s Stack[string]
		s.Push("mpv")
		s.Push("ffmpeg")
		So(s.Len(), ShouldEqual, 2)
		So(s.Peek(), ShouldEqual, "ffmpeg")
		So(s.Pop(), ShouldEqual, "ffmpeg")
		So(s.Pop(), ShouldEqual, "mpv")
		So(s.Pop(), ShouldEqual, "")
		s.Push("libass")
		s.Clear()
		So(s.Len(), ShouldEqual, 0)
	})
}
