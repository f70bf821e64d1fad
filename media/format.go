// Package media defines the domain models for playable sources and backend classification.
package media

import "strings"

// Backend identifies which playback engine a source must go through.
type Backend int

const (
	// BackendNative is the platform media framework (AVFoundation-class decoders).
	BackendNative Backend = iota
	// BackendExternal is the provisioned engine for containers the native framework rejects.
	BackendExternal
)

// String returns the lowercase identifier for the backend.
func (b Backend) String() string {
	switch b {
	case BackendNative:
		return "native"
	case BackendExternal:
		return "external"
	default:
		return "unknown"
	}
}

// externalContainers holds every extension the native framework is known
// to reject. Everything absent from this table classifies native, so an
// unrecognized extension is attempted natively and any decode error
// surfaces downstream instead of forcing an engine install up front.
var externalContainers = map[string]struct{}{
	"webm": {},
	"mkv":  {},
	"mka":  {},
	"ogv":  {},
	"ogm":  {},
	"ogg":  {},
	"flv":  {},
	"f4v":  {},
	"f4p":  {},
	"ts":   {},
	"m2ts": {},
	"wmv":  {},
	"rm":   {},
	"rmvb": {},
}

// nativeContainers are extensions the native framework demuxes directly.
var nativeContainers = map[string]struct{}{
	"mp4":  {},
	"m4v":  {},
	"mov":  {},
	"qt":   {},
	"m4a":  {},
	"mp3":  {},
	"aac":  {},
	"flac": {},
	"wav":  {},
	"aiff": {},
	"avi":  {},
	"3gp":  {},
	"m3u8": {},
}

// KnownContainer reports whether the extension names a media container
// at all, as opposed to a manifest or page reference.
func KnownContainer(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if _, external := externalContainers[ext]; external {
		return true
	}
	_, native := nativeContainers[ext]
	return native
}

// BackendForExtension classifies a container extension.
// The lookup is case-insensitive, tolerates a leading dot and never fails.
func BackendForExtension(ext string) Backend {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if _, external := externalContainers[ext]; external {
		return BackendExternal
	}
	return BackendNative
}

// BackendFor classifies a source by its target extension.
//
// Remote sources without a recognizable extension classify external:
// until the manifest is resolved the container is unknown, and the
// external engine is the one that demuxes anything.
func BackendFor(src Source) Backend {
	ext := src.Extension()
	if ext == "" && src.Kind == KindRemote {
		return BackendExternal
	}
	return BackendForExtension(ext)
}

// RequiresExternalEngine reports whether the source cannot be decoded
// by the native framework and needs the provisioned engine.
func RequiresExternalEngine(src Source) bool {
	return BackendFor(src) == BackendExternal
}
