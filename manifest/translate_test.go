package manifest

import (
	"path/filepath"
	"testing"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/where"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

const fakeflixScript = `
function Matches(url)
    return url:find("fakeflix", 1, true) ~= nil
end

function Translate(raw)
    local title = raw:match('"name"%s*:%s*"([^"]+)"')
    local file = raw:match('"file"%s*:%s*"([^"]+)"')
    return string.format(
        '{"title":"%s","streams":[{"url":"%s","container":"mp4","quality":"1080p","has_video":true,"has_audio":true}]}',
        title, file
    )
end
`

func writeTranslator(name, script string) {
	path := filepath.Join(where.Translators(), name+".lua")
	So(filesystem.API().WriteFile(path, []byte(script), 0o644), ShouldBeNil)
}

func TestTranslators(t *testing.T) {
	Convey("Translator discovery", t, func() {
		writeTranslator("fakeflix", fakeflixScript)

		Convey("Lists installed scripts", func() {
			So(Translators(), ShouldContain, "fakeflix")
		})

		Convey("Finds the script matching a URL", func() {
			name, found := FindTranslator("https://fakeflix.net/watch/123")
			So(found, ShouldBeTrue)
			So(name, ShouldEqual, "fakeflix")
		})

		Convey("Matches nothing for foreign URLs", func() {
			_, found := FindTranslator("https://example.com/watch/123")
			So(found, ShouldBeFalse)
		})
	})
}

func TestTranslateDocument(t *testing.T) {
	Convey("TranslateDocument", t, func() {
		writeTranslator("fakeflix", fakeflixScript)

		Convey("Produces a canonical manifest", func() {
			raw := []byte(`{"name": "Voyage", "file": "https://cdn.fakeflix.net/v.mp4"}`)

			translated, err := TranslateDocument("fakeflix", raw)
			So(err, ShouldBeNil)

			doc, err := ParseDocument(translated)
			So(err, ShouldBeNil)
			So(doc.Title, ShouldEqual, "Voyage")
			So(doc.Streams, ShouldHaveLength, 1)
			So(doc.Streams[0].URL, ShouldEqual, "https://cdn.fakeflix.net/v.mp4")

			Convey("And the result resolves", func() {
				selection, err := NewResolver(PreferQuality).ResolveDocument(doc)
				So(err, ShouldBeNil)
				So(selection.Primary.Quality, ShouldEqual, "1080p")
				So(selection.NativeCompatible(), ShouldBeTrue)
			})
		})

		Convey("Rejects scripts without a Translate function", func() {
			writeTranslator("broken", `function Matches(url) return true end`)

			_, err := TranslateDocument("broken", []byte(`{}`))
			So(err, ShouldNotBeNil)
		})

		Convey("Rejects unknown translator names", func() {
			_, err := TranslateDocument("missing", []byte(`{}`))
			So(err, ShouldNotBeNil)
		})
	})
}
