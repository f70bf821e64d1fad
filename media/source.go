// Package media defines the domain models for playable sources and backend classification.
package media

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Kind discriminates where a source's bytes come from.
type Kind int

const (
	// KindLocalFile is a path on the local filesystem.
	KindLocalFile Kind = iota
	// KindRemote is a network reference resolved through a manifest.
	KindRemote
)

// String returns the lowercase identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindLocalFile:
		return "file"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Source represents a single playable input.
type Source struct {
	// Kind of the target reference.
	Kind Kind `json:"kind"`
	// Target is a filesystem path or a URL, depending on Kind.
	Target string `json:"target"`
}

// NewFileSource constructs a local file source.
func NewFileSource(path string) Source {
	return Source{Kind: KindLocalFile, Target: path}
}

// NewRemoteSource constructs a remote source.
func NewRemoteSource(rawURL string) Source {
	return Source{Kind: KindRemote, Target: rawURL}
}

// ParseTarget classifies a raw CLI argument into a source.
// Anything with an http or https scheme is remote, everything else is a file path.
func ParseTarget(raw string) Source {
	if u, err := url.Parse(raw); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return NewRemoteSource(raw)
		}
	}
	return NewFileSource(raw)
}

// Extension returns the lowercased target extension without the leading dot.
// Remote targets yield the extension of the URL path, which may be empty.
func (s Source) Extension() string {
	target := s.Target
	if s.Kind == KindRemote {
		if u, err := url.Parse(target); err == nil {
			target = u.Path
		}
	}

	ext := filepath.Ext(target)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// String returns the target for display.
func (s Source) String() string {
	return s.Target
}
