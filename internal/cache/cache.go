// Package cache provides file-backed caching for resolved stream
// selections and other transient lookups.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/where"
)

// horizon is the hard expiry used by garbage collection. Reads pass
// their own, usually much shorter, time to live.
const horizon = 7 * 24 * time.Hour

func dir() string {
	path := filepath.Join(where.Cache(), "resolved")
	_ = filesystem.API().MkdirAll(path, 0o755)
	return path
}

// GenerateKey derives a deterministic cache identifier from the given parts.
func GenerateKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}

// Read retrieves a cached object when it is present and younger than ttl.
func Read(key string, target any, ttl time.Duration) bool {
	fs := filesystem.API()
	path := filepath.Join(dir(), key)

	info, err := fs.Stat(path)
	if err != nil || time.Since(info.ModTime()) > ttl {
		return false
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		return false
	}

	return json.Unmarshal(data, target) == nil
}

// Write persists a serializable object, swapping the entry into place
// so a concurrent reader never sees a torn write.
func Write(key string, data any) error {
	fs := filesystem.API()
	path := filepath.Join(dir(), key)
	tmp := path + ".tmp"

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := fs.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}

	return fs.Rename(tmp, path)
}

// CollectGarbage prunes entries older than the horizon in the background.
func CollectGarbage() {
	go collectGarbage()
}

func collectGarbage() {
	fs := filesystem.API()

	entries, err := fs.ReadDir(dir())
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if time.Since(entry.ModTime()) > horizon {
			_ = fs.Remove(filepath.Join(dir(), entry.Name()))
		}
	}
}
