// Package player defines a unified abstraction layer for media playback engines.
package player

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/where"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// MPV implements the Player interface by launching an mpv process and
// steering it through its JSON-IPC socket.
type MPV struct {
	binary     string
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when the process exits
	mu         sync.Mutex    // protects socket writes
}

// NewMPV creates a new MPV player instance (does not start playback).
// The binary name comes from player.external so distribution builds can
// point at a bundled executable.
func NewMPV() *MPV {
	binary := viper.GetString(key.PlayerExternal)
	if binary == "" || strings.EqualFold(binary, "iina") {
		binary = "mpv"
	}

	return &MPV{
		binary: binary,
		exited: make(chan struct{}),
	}
}

// Play starts playback of the given target. If mpv is already running,
// the call replaces the loaded file via a fresh process.
func (m *MPV) Play(target string, title string, headers map[string]string) error {
	safeTarget, err := sanitizeMediaTarget(target)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	// Generate a random socket path using os.TempDir() for cross-platform support
	// (macOS $TMPDIR is /var/folders/... not /tmp/)
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("porthole-%x.sock", randomBytes))
	}

	m.cmd = exec.Command(m.binary, buildArgs(m.socketPath, safeTarget, sanitizeTitle(title), headers)...)
	m.cmd.Env = engineEnvironment(os.Environ())

	// Detach from the parent process group so a shell interrupt does not
	// take the player down with it.
	m.cmd.SysProcAttr = sysProcAttr()

	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.binary, err)
	}

	// Reap the process in the background to prevent zombies.
	m.exited = make(chan struct{})
	go func(cmd *exec.Cmd, exited chan struct{}) {
		_ = cmd.Wait()
		close(exited)
	}(m.cmd, m.exited)

	if err := m.waitForSocket(); err != nil {
		if m.cmd.Process != nil {
			select {
			case <-m.exited:
			default:
				log.Warnf("killing %s: socket never became ready", m.binary)
				_ = m.cmd.Process.Kill()
			}
		}
		return fmt.Errorf("%s socket not ready: %w", m.binary, err)
	}

	return nil
}

// buildArgs assembles the mpv command line.
// It passes ONLY the socket, title, and target. No --vo, --profile, or
// --hwdec: the user's mpv.conf stays authoritative.
func buildArgs(socketPath, target, title string, headers map[string]string) []string {
	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", socketPath),
		fmt.Sprintf("--force-media-title=%s", title),
		fmt.Sprintf("--title=%s", title), // Some mpv builds only respect --title
		"--force-window=yes",
		"--idle=yes",
	}

	if header := headerFields(headers); header != "" {
		args = append(args, fmt.Sprintf("--http-header-fields=%s", header))
	}

	return append(args, target)
}

// headerFields renders request headers in mpv's comma-separated format,
// sorted by name so the command line is reproducible.
func headerFields(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		if builder.Len() > 0 {
			builder.WriteString(",")
		}
		value := strings.ReplaceAll(headers[name], ",", "%2C")
		builder.WriteString(fmt.Sprintf("%s: %s", name, value))
	}
	return builder.String()
}

// engineEnvironment prepends the provisioned engine's lib directory to the
// dynamic loader search path so the spawned player prefers the managed
// libraries. A missing engine leaves the environment untouched.
func engineEnvironment(base []string) []string {
	libDir := filepath.Join(where.Engine(), "lib")
	if exists, err := filesystem.API().DirExists(libDir); err != nil || !exists {
		return base
	}

	name := "LD_LIBRARY_PATH"
	switch runtime.GOOS {
	case "darwin":
		name = "DYLD_FALLBACK_LIBRARY_PATH"
	case "windows":
		name = "PATH"
	}

	out := make([]string, 0, len(base)+1)
	prefix := name + "="
	injected := false
	for _, entry := range base {
		if strings.HasPrefix(entry, prefix) {
			entry = prefix + libDir + string(os.PathListSeparator) + strings.TrimPrefix(entry, prefix)
			injected = true
		}
		out = append(out, entry)
	}
	if !injected {
		out = append(out, prefix+libDir)
	}
	return out
}

// Wait returns a channel that is closed when the mpv process exits.
func (m *MPV) Wait() <-chan struct{} {
	return m.exited
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return fmt.Errorf("%s exited before socket was ready", m.binary)
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// IsRunning reports whether mpv is responding to IPC commands.
func (m *MPV) IsRunning() bool {
	if m.socketPath == "" {
		return false
	}

	select {
	case <-m.exited:
		return false
	default:
	}

	_, err := m.sendCommand([]interface{}{"get_property", "pid"})
	return err == nil
}

// Close shuts down the mpv process and cleans up resources.
func (m *MPV) Close() error {
	if m.socketPath == "" {
		return nil
	}

	// Try graceful quit via IPC first.
	_, _ = m.sendCommand([]interface{}{"quit"})

	select {
	case <-m.exited:
	case <-time.After(3 * time.Second):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)

	return nil
}

// Socket returns the IPC socket path.
func (m *MPV) Socket() string {
	return m.socketPath
}

// sanitizeMediaTarget validates that a target is safe to pass to mpv.
// Prevents flag injection from untrusted translator scripts.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty target")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in target")
	}

	// URLs must not start with - or they parse as flags.
	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("target must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	// Treat as local file path
	return filepath.Clean(l), nil
}

// sanitizeTitle cleans up the display title for mpv.
func sanitizeTitle(title string) string {
	t := strings.ReplaceAll(title, "\n", " ")
	t = strings.ReplaceAll(t, "\r", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	t = strings.ReplaceAll(t, "\x00", "")
	return strings.TrimSpace(t)
}
