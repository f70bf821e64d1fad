// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/porthole-app/porthole/constant"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "porthole"
	keyringUser    = "registry-credential"
)

// SetCredential persists an optional registry credential ("user:token")
// to the system keyring. Anonymous pulls work without one; a credential
// lifts registry rate limits.
func SetCredential(credential string) error {
	return keyring.Set(keyringService, keyringUser, credential)
}

// Credential retrieves the registry credential from the system keyring.
func Credential() (string, error) {
	return keyring.Get(keyringService, keyringUser)
}

// DeleteCredential removes the registry credential from the system keyring.
func DeleteCredential() error {
	return keyring.Delete(keyringService, keyringUser)
}

// token exchanges a pull-scope request against the registry's token
// endpoint for a bearer token. A keyring credential, when present, is
// attached as Basic auth; otherwise the exchange is anonymous.
// Rejections and missing token fields are terminal, never retried.
func (i *Installer) token(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s?scope=repository:%s/%s:pull", i.opts.TokenURL, constant.RegistryNamespace, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}
	req.Header.Set("User-Agent", constant.UserAgent)

	if credential, err := Credential(); err == nil && credential != "" {
		if user, secret, ok := strings.Cut(credential, ":"); ok {
			req.SetBasicAuth(user, secret)
		}
	}

	resp, err := network.DoWithRetry(ctx, i.opts.Client, req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}
	defer util.Ignore(resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: token endpoint returned no token", ErrAuthFailed)
	}

	return payload.Token, nil
}
