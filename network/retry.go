// Package network provides pre-configured, optimized HTTP clients for registry and manifest communication.
package network

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/log"
	"github.com/spf13/viper"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
	retryJitterMax = 300 * time.Millisecond
)

// DoWithRetry executes req with bounded retries on transient failures.
//
// Only timeouts, transient transport errors and retryable status codes
// (408, 429, 5xx) trigger another attempt. Authentication and other
// client errors surface immediately. The same request instance is reused
// across attempts, so req.Body must be non-consumable (e.g. http.NoBody).
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	attempts := viper.GetInt(key.NetworkRetries)
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		resp, err := client.Do(req)
		if err != nil {
			if !retryableError(err) || attempt == attempts {
				return nil, err
			}
			log.Debugf("transient request failure (attempt %d/%d): %s", attempt, attempts, err)
		} else {
			if !retryableStatus(resp.StatusCode) || attempt == attempts {
				return resp, nil
			}
			log.Debugf("transient status %d (attempt %d/%d): %s", resp.StatusCode, attempt, attempts, req.URL)
			_ = resp.Body.Close()
		}

		if err := sleep(ctx, backoffDelay(attempt)); err != nil {
			return nil, err
		}
	}
}

// retryableStatus reports whether a response status code indicates a
// transient server-side condition.
func retryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= http.StatusInternalServerError
}

// retryableError reports whether a transport error is worth another attempt.
// Context cancellation is terminal: the caller asked to stop.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && transientSyscall(opErr.Err) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Temporary() {
		return true
	}

	return false
}

func transientSyscall(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ECONNRESET, syscall.ECONNREFUSED,
		syscall.EADDRNOTAVAIL, syscall.ENETUNREACH,
		syscall.EHOSTUNREACH:
		return true
	}
	return false
}

// backoffDelay computes the exponential delay for an attempt, capped and jittered.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			delay = retryMaxDelay
			break
		}
	}
	return delay + time.Duration(rand.Int63n(int64(retryJitterMax)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
