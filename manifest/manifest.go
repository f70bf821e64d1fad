// Package manifest parses stream manifests and resolves them into a playable selection.
//
// A manifest is the JSON document a provider hands back for a remote
// reference: a title plus the raw list of stream variants the host
// offers. Resolution turns that list into a deterministic ordering with
// a single primary pick, so the same document always produces the same
// playback decision.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/porthole-app/porthole/media"
)

// ErrManifest indicates an unusable manifest document.
var ErrManifest = errors.New("malformed manifest")

// Document is the canonical manifest schema.
type Document struct {
	// Title of the media, used for display and player window naming.
	Title string `json:"title" jsonschema:"required"`
	// Source is an optional provider identifier.
	Source string `json:"source,omitempty"`
	// Duration in seconds, when the provider knows it.
	Duration float64 `json:"duration,omitempty"`
	// Streams holds every variant the host offers. Required, may be empty.
	Streams []Entry `json:"streams" jsonschema:"required"`
}

// Entry is a single stream variant inside a manifest.
type Entry struct {
	// URL of the stream.
	URL string `json:"url" jsonschema:"required"`
	// Container extension (e.g. "mp4", "webm").
	Container string `json:"container,omitempty"`
	// Quality label (e.g. "1080p", "4K").
	Quality string `json:"quality,omitempty"`
	// Bitrate in bits per second, zero when unknown.
	Bitrate int64 `json:"bitrate,omitempty"`
	// HasVideo marks entries carrying a video track.
	HasVideo bool `json:"has_video"`
	// HasAudio marks entries carrying an audio track.
	HasAudio bool `json:"has_audio"`
	// NativeCompatible overrides container-derived compatibility when set.
	NativeCompatible *bool `json:"native_compatible,omitempty"`
}

// Combined reports whether the entry muxes video and audio together.
func (e *Entry) Combined() bool {
	return e.HasVideo && e.HasAudio
}

// nativeCompatible resolves the entry's compatibility, deriving it from
// the container when the manifest does not state it outright.
func (e *Entry) nativeCompatible() bool {
	if e.NativeCompatible != nil {
		return *e.NativeCompatible
	}
	return media.BackendForExtension(e.Container) == media.BackendNative
}

// ParseDocument decodes and validates manifest bytes.
// Malformed JSON, a missing title or an absent streams key yield ErrManifest.
func ParseDocument(raw []byte) (Document, error) {
	// streams must be present as a key even when empty, so decode it
	// through a pointer to tell "absent" apart from "empty".
	var probe struct {
		Title    string   `json:"title"`
		Source   string   `json:"source"`
		Duration float64  `json:"duration"`
		Streams  *[]Entry `json:"streams"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrManifest, err)
	}

	if probe.Title == "" {
		return Document{}, fmt.Errorf("%w: missing title", ErrManifest)
	}

	if probe.Streams == nil {
		return Document{}, fmt.Errorf("%w: missing streams", ErrManifest)
	}

	return Document{
		Title:    probe.Title,
		Source:   probe.Source,
		Duration: probe.Duration,
		Streams:  *probe.Streams,
	}, nil
}
