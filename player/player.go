// Package player defines a unified abstraction layer for media playback engines.
// The primary implementation launches 'mpv' and talks to it over its JSON-IPC interface.
package player

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/porthole-app/porthole/key"
)

// Player encapsulates the required capabilities for a media playback backend.
type Player interface {
	// Play starts playback of the target with the given display title.
	// The target is a local path or a direct stream URL.
	Play(target string, title string, headers map[string]string) error

	// Wait returns a channel that is closed when the playback session terminates.
	Wait() <-chan struct{}

	// Close terminates the playback engine and releases all associated system resources.
	Close() error
}

// External returns the playback adapter selected by the player.external setting.
func External() Player {
	if strings.EqualFold(viper.GetString(key.PlayerExternal), "iina") {
		return NewIINA()
	}
	return NewMPV()
}
