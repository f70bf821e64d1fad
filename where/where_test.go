package where

import (
	"strings"
	"testing"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Use in-memory filesystem for tests to avoid creating real directories
	filesystem.SetMemMapFs()
}

func TestPaths(t *testing.T) {
	Convey("Path functions", t, func() {
		Convey("Config()", func() {
			path := Config()
			So(path, ShouldNotBeEmpty)
			So(lo.Must(filesystem.API().IsDir(path)), ShouldBeTrue)
		})

		Convey("Cache()", func() {
			path := Cache()
			So(path, ShouldNotBeEmpty)
			So(lo.Must(filesystem.API().IsDir(path)), ShouldBeTrue)
		})

		Convey("Logs()", func() {
			path := Logs()
			So(path, ShouldNotBeEmpty)
			So(lo.Must(filesystem.API().IsDir(path)), ShouldBeTrue)
		})

		Convey("Translators()", func() {
			path := Translators()
			So(path, ShouldNotBeEmpty)
			So(lo.Must(filesystem.API().IsDir(path)), ShouldBeTrue)
		})

		Convey("Engine()", func() {
			path := Engine()
			So(path, ShouldNotBeEmpty)

			Convey("Is not created on resolution", func() {
				exists, err := filesystem.API().DirExists(path)
				So(err, ShouldBeNil)
				So(exists, ShouldBeFalse)
			})

			Convey("Receipt lives inside the install root", func() {
				So(strings.HasPrefix(EngineReceipt(), path), ShouldBeTrue)
			})
		})
	})
}
