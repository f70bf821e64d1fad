package bottle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zalando/go-keyring"
)

func TestRegistryAuth(t *testing.T) {
	keyring.MockInit()

	Convey("Exchanging a registry token", t, func() {
		var lastAuth, lastScope string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastAuth = r.Header.Get("Authorization")
			lastScope = r.URL.Query().Get("scope")

			switch lastScope {
			case "repository:homebrew/core/mpv:pull":
				fmt.Fprint(w, `{"token": "pull-grant"}`)
			case "repository:homebrew/core/denied:pull":
				w.WriteHeader(http.StatusUnauthorized)
			case "repository:homebrew/core/empty:pull":
				fmt.Fprint(w, `{}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		installer := NewInstaller(Options{
			Formula:        "mpv",
			InstallDir:     "/auth/engine",
			FormulaAPIBase: server.URL,
			TokenURL:       server.URL,
			Client:         server.Client(),
			Download:       server.Client(),
		})

		Convey("anonymously when no credential is stored", func() {
			token, err := installer.token(context.Background(), "mpv")
			So(err, ShouldBeNil)
			So(token, ShouldEqual, "pull-grant")
			So(lastAuth, ShouldBeEmpty)
			So(lastScope, ShouldEqual, "repository:homebrew/core/mpv:pull")
		})

		Convey("with a stored credential attached as basic auth", func() {
			So(SetCredential("brewer:ghp_secret"), ShouldBeNil)
			defer func() { So(DeleteCredential(), ShouldBeNil) }()

			token, err := installer.token(context.Background(), "mpv")
			So(err, ShouldBeNil)
			So(token, ShouldEqual, "pull-grant")
			So(lastAuth, ShouldStartWith, "Basic ")
		})

		Convey("a rejection is terminal", func() {
			_, err := installer.token(context.Background(), "denied")
			So(errors.Is(err, ErrAuthFailed), ShouldBeTrue)
		})

		Convey("a response without a token field is a failure", func() {
			_, err := installer.token(context.Background(), "empty")
			So(errors.Is(err, ErrAuthFailed), ShouldBeTrue)
		})

		Convey("credentials round-trip through the keyring", func() {
			So(SetCredential("user:value"), ShouldBeNil)

			credential, err := Credential()
			So(err, ShouldBeNil)
			So(credential, ShouldEqual, "user:value")

			So(DeleteCredential(), ShouldBeNil)
			_, err = Credential()
			So(err, ShouldNotBeNil)
		})
	})
}
