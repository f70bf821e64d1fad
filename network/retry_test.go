package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/porthole-app/porthole/key"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func TestClassification(t *testing.T) {
	Convey("Status classification", t, func() {
		Convey("Retries server-side and throttling statuses", func() {
			for _, status := range []int{408, 429, 500, 502, 503} {
				So(retryableStatus(status), ShouldBeTrue)
			}
		})

		Convey("Never retries client errors", func() {
			for _, status := range []int{200, 301, 400, 401, 403, 404} {
				So(retryableStatus(status), ShouldBeFalse)
			}
		})
	})

	Convey("Error classification", t, func() {
		Convey("Cancellation is terminal", func() {
			So(retryableError(context.Canceled), ShouldBeFalse)
		})

		Convey("Timeouts are transient", func() {
			So(retryableError(context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("Connection resets are transient", func() {
			err := &net.OpError{Op: "read", Err: syscall.ECONNRESET}
			So(retryableError(err), ShouldBeTrue)
		})

		Convey("Unknown errors are terminal", func() {
			So(retryableError(errors.New("boom")), ShouldBeFalse)
			So(retryableError(nil), ShouldBeFalse)
		})
	})
}

func TestBackoffDelay(t *testing.T) {
	Convey("Backoff delay", t, func() {
		Convey("Starts at the base delay", func() {
			So(backoffDelay(1), ShouldBeGreaterThanOrEqualTo, retryBaseDelay)
		})

		Convey("Grows but stays capped", func() {
			previousMax := time.Duration(0)
			for attempt := 1; attempt <= 10; attempt++ {
				d := backoffDelay(attempt)
				So(d, ShouldBeLessThanOrEqualTo, retryMaxDelay+retryJitterMax)
				if d > previousMax {
					previousMax = d
				}
			}
			So(previousMax, ShouldBeGreaterThan, retryBaseDelay)
		})
	})
}

func TestDoWithRetry(t *testing.T) {
	Convey("DoWithRetry", t, func() {
		viper.Set(key.NetworkRetries, 3)

		Convey("Recovers from transient server failures", func() {
			var calls int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
			So(err, ShouldBeNil)

			resp, err := DoWithRetry(context.Background(), server.Client(), req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(calls, ShouldEqual, 3)
		})

		Convey("Returns client errors without retrying", func() {
			var calls int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
			So(err, ShouldBeNil)

			resp, err := DoWithRetry(context.Background(), server.Client(), req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(calls, ShouldEqual, 1)
		})
	})
}
