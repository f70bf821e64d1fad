// Package player defines a unified abstraction layer for media playback engines.
package player

import (
	"fmt"
	"os/exec"
	"runtime"
)

// IINA implements the Player interface for macOS native IINA playback.
// IINA exposes no IPC socket, so the adapter is launch-and-forget: it
// hands the target to LaunchServices and tracks only process liveness.
type IINA struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewIINA creates a new IINA player instance.
func NewIINA() *IINA {
	return &IINA{
		exited: make(chan struct{}),
	}
}

// Play opens the target in IINA. mpv options pass through the --mpv-*
// argument bridge IINA provides.
func (p *IINA) Play(target string, title string, headers map[string]string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("IINA is only supported on macOS")
	}

	safeTarget, err := sanitizeMediaTarget(target)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	args := []string{
		"-a", "IINA",
		"--args",
		fmt.Sprintf("--mpv-force-media-title=%s", sanitizeTitle(title)),
	}

	if header := headerFields(headers); header != "" {
		args = append(args, fmt.Sprintf("--mpv-http-header-fields=%s", header))
	}

	args = append(args, safeTarget)

	p.cmd = exec.Command("open", args...)

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("LaunchServices failed to invoke IINA: %w", err)
	}

	go func() {
		_ = p.cmd.Wait()
		close(p.exited)
	}()

	return nil
}

// Wait returns a channel that is closed once the launcher process exits.
// IINA detaches immediately, so this signals hand-off rather than the end
// of playback.
func (p *IINA) Wait() <-chan struct{} {
	return p.exited
}

// Close releases the launcher process. The detached IINA window stays up.
func (p *IINA) Close() error {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return nil
}
