package media

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBackendForExtension(t *testing.T) {
	Convey("BackendForExtension", t, func() {
		Convey("Classifies rejected containers as external", func() {
			for _, ext := range []string{"webm", "mkv", "mka", "ogv", "ogm", "ogg", "flv", "f4v", "f4p", "ts", "m2ts", "wmv", "rm", "rmvb"} {
				So(BackendForExtension(ext), ShouldEqual, BackendExternal)
			}
		})

		Convey("Classifies everything else as native", func() {
			for _, ext := range []string{"mp4", "mov", "m4v", "avi", "mp3", "m4a", "aac", "wav"} {
				So(BackendForExtension(ext), ShouldEqual, BackendNative)
			}
		})

		Convey("Is case-insensitive", func() {
			So(BackendForExtension("MKV"), ShouldEqual, BackendExternal)
			So(BackendForExtension("WebM"), ShouldEqual, BackendExternal)
			So(BackendForExtension("MP4"), ShouldEqual, BackendNative)
		})

		Convey("Tolerates a leading dot", func() {
			So(BackendForExtension(".mkv"), ShouldEqual, BackendExternal)
			So(BackendForExtension(".mov"), ShouldEqual, BackendNative)
		})

		Convey("Is total over junk input", func() {
			for _, ext := range []string{"", ".", "???", "mkv.exe", "a-very-long-made-up-extension", "\x00"} {
				So(func() { BackendForExtension(ext) }, ShouldNotPanic)
				So(BackendForExtension(ext), ShouldEqual, BackendNative)
			}
		})
	})
}

func TestKnownContainer(t *testing.T) {
	Convey("KnownContainer", t, func() {
		Convey("Recognizes native and external containers alike", func() {
			for _, ext := range []string{"mp4", "mov", "m3u8", "mkv", "webm", ".MKV", ".Mp4"} {
				So(KnownContainer(ext), ShouldBeTrue)
			}
		})

		Convey("Rejects document and page extensions", func() {
			for _, ext := range []string{"", "json", "html", "php", "xml", "txt"} {
				So(KnownContainer(ext), ShouldBeFalse)
			}
		})
	})
}

func TestBackendFor(t *testing.T) {
	Convey("BackendFor", t, func() {
		Convey("Local files classify by extension", func() {
			So(BackendFor(NewFileSource("/films/voyage.mkv")), ShouldEqual, BackendExternal)
			So(BackendFor(NewFileSource("/films/voyage.mp4")), ShouldEqual, BackendNative)
		})

		Convey("Remote URLs classify by path extension", func() {
			So(BackendFor(NewRemoteSource("https://cdn.example.com/v/episode.webm?token=abc")), ShouldEqual, BackendExternal)
			So(BackendFor(NewRemoteSource("https://cdn.example.com/v/episode.mp4")), ShouldEqual, BackendNative)
		})

		Convey("Remote URLs without an extension classify external", func() {
			So(BackendFor(NewRemoteSource("https://watch.example.com/e/12345")), ShouldEqual, BackendExternal)
		})

		Convey("Local files without an extension classify native", func() {
			So(BackendFor(NewFileSource("/films/voyage")), ShouldEqual, BackendNative)
		})
	})

	Convey("RequiresExternalEngine mirrors the classification", t, func() {
		So(RequiresExternalEngine(NewFileSource("clip.flv")), ShouldBeTrue)
		So(RequiresExternalEngine(NewFileSource("clip.mov")), ShouldBeFalse)
	})
}

func TestParseTarget(t *testing.T) {
	Convey("ParseTarget", t, func() {
		Convey("http and https are remote", func() {
			So(ParseTarget("https://example.com/v.mkv").Kind, ShouldEqual, KindRemote)
			So(ParseTarget("http://example.com/v.mkv").Kind, ShouldEqual, KindRemote)
			So(ParseTarget("HTTPS://example.com/v.mkv").Kind, ShouldEqual, KindRemote)
		})

		Convey("Everything else is a file path", func() {
			So(ParseTarget("/home/user/v.mkv").Kind, ShouldEqual, KindLocalFile)
			So(ParseTarget("relative/v.mkv").Kind, ShouldEqual, KindLocalFile)
			So(ParseTarget("C:\\films\\v.mkv").Kind, ShouldEqual, KindLocalFile)
		})
	})

	Convey("Extension", t, func() {
		So(NewFileSource("/films/Voyage.MKV").Extension(), ShouldEqual, "mkv")
		So(NewRemoteSource("https://cdn.example.com/v.webm?sig=a.b").Extension(), ShouldEqual, "webm")
		So(NewRemoteSource("https://watch.example.com/e/123").Extension(), ShouldEqual, "")
	})
}
