package cache

import (
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/porthole-app/porthole/filesystem"
)

func init() {
	filesystem.SetMemMapFs()
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache(t *testing.T) {
	Convey("The lookup cache", t, func() {
		fs := filesystem.API()
		So(fs.RemoveAll(dir()), ShouldBeNil)

		Convey("round-trips serializable values", func() {
			key := GenerateKey("selection", "https://example.com/watch/1")
			So(Write(key, payload{Name: "episode", Count: 3}), ShouldBeNil)

			var got payload
			So(Read(key, &got, time.Hour), ShouldBeTrue)
			So(got, ShouldResemble, payload{Name: "episode", Count: 3})
		})

		Convey("derives stable keys from its parts", func() {
			So(GenerateKey("a", "b"), ShouldEqual, GenerateKey("a", "b"))
			So(GenerateKey("a", "b"), ShouldNotEqual, GenerateKey("ab"))
			So(GenerateKey("a", "b"), ShouldHaveLength, 64)
		})

		Convey("misses unknown keys and expired entries", func() {
			var got payload
			So(Read(GenerateKey("absent"), &got, time.Hour), ShouldBeFalse)

			key := GenerateKey("stale")
			So(Write(key, payload{Name: "old"}), ShouldBeNil)

			past := time.Now().Add(-2 * time.Hour)
			So(fs.Chtimes(filepath.Join(dir(), key), past, past), ShouldBeNil)
			So(Read(key, &got, time.Hour), ShouldBeFalse)
		})

		Convey("garbage collection prunes entries past the horizon", func() {
			keep := GenerateKey("keep")
			drop := GenerateKey("drop")
			So(Write(keep, payload{Name: "keep"}), ShouldBeNil)
			So(Write(drop, payload{Name: "drop"}), ShouldBeNil)

			ancient := time.Now().Add(-horizon - time.Hour)
			So(fs.Chtimes(filepath.Join(dir(), drop), ancient, ancient), ShouldBeNil)

			collectGarbage()

			var got payload
			So(Read(keep, &got, time.Hour), ShouldBeTrue)
			So(Read(drop, &got, time.Hour), ShouldBeFalse)
		})
	})
}
