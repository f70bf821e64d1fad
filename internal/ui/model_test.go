package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/porthole-app/porthole/bottle"
	"github.com/porthole-app/porthole/config"
	"github.com/porthole-app/porthole/filesystem"
)

func init() {
	filesystem.SetMemMapFs()
	lo.Must0(config.Setup())
}

func TestInstallModel(t *testing.T) {
	Convey("Rendering an engine installation", t, func() {
		events := make(chan bottle.Event)
		result := make(chan error)
		model := NewInstall(events, result)

		apply := func(msg tea.Msg) {
			_, _ = model.Update(msg)
		}

		Convey("the active stage shows with a spinner line", func() {
			apply(eventMsg(bottle.Event{Stage: bottle.StageResolve}))

			So(model.View(), ShouldContainSubstring, "Resolving formulae")
		})

		Convey("finished stages accumulate as history", func() {
			apply(eventMsg(bottle.Event{Stage: bottle.StageResolve}))
			apply(eventMsg(bottle.Event{Stage: bottle.StageAuth, Formula: "mpv", Current: 1, Total: 2}))

			view := model.View()
			So(view, ShouldContainSubstring, "Resolving formulae")
			So(view, ShouldContainSubstring, "Authorizing mpv")
			So(model.history, ShouldResemble, []string{"Resolving formulae"})
		})

		Convey("downloads render a byte counter", func() {
			apply(eventMsg(bottle.Event{Stage: bottle.StageDownload, Formula: "mpv", Current: 2048, Total: 4096}))

			So(model.View(), ShouldContainSubstring, "2.0 KiB / 4.0 KiB")
		})

		Convey("a successful result seals the view", func() {
			apply(eventMsg(bottle.Event{Stage: bottle.StagePublish}))
			apply(doneMsg{})

			view := model.View()
			So(view, ShouldContainSubstring, "Publishing engine")
			So(view, ShouldContainSubstring, "Engine installed")
			So(model.Err(), ShouldBeNil)
		})

		Convey("a failed result renders the error", func() {
			apply(eventMsg(bottle.Event{Stage: bottle.StageDownload, Formula: "mpv"}))
			apply(doneMsg{err: errors.New("download mpv: gateway timeout")})

			So(model.View(), ShouldContainSubstring, "gateway timeout")
			So(model.Err(), ShouldNotBeNil)
		})

		Convey("errors wrap to the window width", func() {
			apply(tea.WindowSizeMsg{Width: 24, Height: 40})
			apply(doneMsg{err: errors.New("metadata unavailable: fetching formula definition for mpv failed")})

			for _, line := range strings.Split(model.View(), "\n") {
				So(lipgloss.Width(line), ShouldBeLessThanOrEqualTo, 24)
			}
		})
	})
}
