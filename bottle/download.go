// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
)

// maxArchiveSize caps a single bottle download; prevents unbounded
// transfers even when Content-Length is missing or spoofed.
const maxArchiveSize = 512 * 1024 * 1024

// download streams a bottle archive to dest with the bearer token attached.
// Transient failures are retried with backoff by the shared retry layer;
// a non-success status is terminal. The streamed bytes must match the
// digest the formula declares before the archive is accepted.
func (i *Installer) download(ctx context.Context, desc *Descriptor, token, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.oci.image.layer.v1.tar+gzip")

	resp, err := network.DoWithRetry(ctx, i.opts.Download, req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}
	defer util.Ignore(resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrDownloadFailed, desc.Name, resp.StatusCode)
	}
	if resp.ContentLength > maxArchiveSize {
		return fmt.Errorf("%w: %s archive is %d bytes (max %d)", ErrDownloadFailed, desc.Name, resp.ContentLength, maxArchiveSize)
	}

	out, err := filesystem.API().Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}

	digest := sha256.New()
	reader := &progressReader{
		inner: io.TeeReader(io.LimitReader(resp.Body, maxArchiveSize+1), digest),
		emit: func(current int64) {
			i.emit(Event{Stage: StageDownload, Formula: desc.Name, Current: current, Total: resp.ContentLength})
		},
	}

	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = filesystem.API().Remove(dest)
		return fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}
	if written > maxArchiveSize {
		_ = filesystem.API().Remove(dest)
		return fmt.Errorf("%w: %s archive exceeds %d bytes", ErrDownloadFailed, desc.Name, maxArchiveSize)
	}

	if desc.Sha256 != "" {
		if sum := hex.EncodeToString(digest.Sum(nil)); !strings.EqualFold(sum, desc.Sha256) {
			_ = filesystem.API().Remove(dest)
			return fmt.Errorf("%w: %s checksum mismatch: downloaded %s, formula declares %s", ErrDownloadFailed, desc.Name, sum, desc.Sha256)
		}
	}

	return nil
}

// progressReader reports cumulative byte counts as the body streams through.
type progressReader struct {
	inner io.Reader
	emit  func(current int64)
	read  int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.emit(r.read)
	}
	return n, err
}
