// Package manifest parses stream manifests and resolves them into a playable selection.
package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/util"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrNoEligibleStream indicates a manifest whose streams carry no video at all.
var ErrNoEligibleStream = errors.New("manifest carries no playable video stream")

// Policy selects the resolution precedence.
type Policy int

const (
	// PreferQuality picks the highest achievable quality and merely reports
	// compatibility, so an incompatible 4K stream beats a compatible 1080p one.
	PreferQuality Policy = iota
	// PreferCompatible ranks natively decodable candidates above all others
	// and applies the quality ordering within each group.
	PreferCompatible
)

// String returns the lowercase identifier for the policy.
func (p Policy) String() string {
	switch p {
	case PreferQuality:
		return "quality"
	case PreferCompatible:
		return "compatible"
	default:
		return "unknown"
	}
}

// Candidate is a playable pick synthesized from manifest entries.
type Candidate struct {
	// VideoURL is the stream to hand to the player.
	VideoURL string `json:"video_url"`
	// AudioURL is the paired audio stream; empty when VideoURL is combined.
	AudioURL string `json:"audio_url,omitempty"`
	// Container extension of the video stream.
	Container string `json:"container,omitempty"`
	// Quality label as declared by the manifest.
	Quality string `json:"quality,omitempty"`
	// Rank is the parsed vertical resolution, zero when unparseable.
	Rank int `json:"rank"`
	// Bitrate totals the candidate's streams, zero when unknown.
	Bitrate int64 `json:"bitrate,omitempty"`
	// NativeCompatible reports whether every stream of the candidate
	// decodes through the native framework.
	NativeCompatible bool `json:"native_compatible"`
}

// Split reports whether audio rides in a separate stream.
func (c *Candidate) Split() bool {
	return c.AudioURL != ""
}

// String returns the quality or URL for display.
func (c *Candidate) String() string {
	if c.Quality != "" {
		return c.Quality
	}
	return c.VideoURL
}

// Selection is the deterministic outcome of resolving one manifest.
type Selection struct {
	// Title of the media.
	Title string `json:"title"`
	// Primary is the most preferred candidate.
	Primary Candidate `json:"primary"`
	// Alternates hold the remaining candidates, most preferred first,
	// for the open-failure fallback loop.
	Alternates []Candidate `json:"alternates,omitempty"`
}

// NativeCompatible reports whether the primary pick decodes natively.
// It is derived from the primary, never stored input.
func (s *Selection) NativeCompatible() bool {
	return s.Primary.NativeCompatible
}

// Resolver turns manifest documents into selections under a fixed policy.
type Resolver struct {
	policy Policy
	hint   string
}

// NewResolver constructs a resolver with the given precedence policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// ConfiguredResolver builds a resolver from the user configuration:
// the precedence knob and the optional quality hint.
func ConfiguredResolver() *Resolver {
	policy := PreferQuality
	if viper.GetBool(key.ResolverPreferCompatible) {
		policy = PreferCompatible
	}

	r := NewResolver(policy)
	r.hint = viper.GetString(key.ResolverPreferredQuality)
	return r
}

// SetQualityHint installs a fuzzy label preference (e.g. "1080", "4k")
// that outranks raw resolution once the policy ordering is satisfied.
func (r *Resolver) SetQualityHint(hint string) {
	r.hint = hint
}

// Resolve parses raw manifest bytes and resolves them.
// Byte-identical input always yields an identical selection.
func (r *Resolver) Resolve(raw []byte) (*Selection, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return r.ResolveDocument(doc)
}

// ResolveDocument resolves an already parsed document.
//
// Candidates are every combined entry plus every video-only entry paired
// with its best matching audio-only companion. They are ordered by the
// documented precedence chain: policy group (PreferCompatible only),
// quality hint match, resolution rank descending, combined over split,
// total bitrate descending, container ascending, URL ascending.
func (r *Resolver) ResolveDocument(doc Document) (*Selection, error) {
	candidates := synthesize(doc.Streams)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleStream, doc.Title)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return r.less(&candidates[i], &candidates[j])
	})

	return &Selection{
		Title:      doc.Title,
		Primary:    candidates[0],
		Alternates: candidates[1:],
	}, nil
}

// less is the total order over candidates. Every clause is derived from
// manifest bytes only, keeping resolution reproducible.
func (r *Resolver) less(a, b *Candidate) bool {
	if r.policy == PreferCompatible && a.NativeCompatible != b.NativeCompatible {
		return a.NativeCompatible
	}
	if r.hint != "" {
		am, bm := fuzzy.MatchFold(r.hint, a.Quality), fuzzy.MatchFold(r.hint, b.Quality)
		if am != bm {
			return am
		}
	}
	if a.Rank != b.Rank {
		return a.Rank > b.Rank
	}
	if a.Split() != b.Split() {
		return !a.Split()
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	if a.Container != b.Container {
		return a.Container < b.Container
	}
	if a.VideoURL != b.VideoURL {
		return a.VideoURL < b.VideoURL
	}
	return a.AudioURL < b.AudioURL
}

// synthesize builds the candidate set from raw entries.
func synthesize(entries []Entry) []Candidate {
	combined := lo.Filter(entries, func(e Entry, _ int) bool { return e.Combined() })
	videoOnly := lo.Filter(entries, func(e Entry, _ int) bool { return e.HasVideo && !e.HasAudio })
	audioOnly := lo.Filter(entries, func(e Entry, _ int) bool { return e.HasAudio && !e.HasVideo })

	candidates := make([]Candidate, 0, len(combined)+len(videoOnly))

	for _, e := range combined {
		candidates = append(candidates, Candidate{
			VideoURL:         e.URL,
			Container:        e.Container,
			Quality:          e.Quality,
			Rank:             parseRank(e.Quality),
			Bitrate:          e.Bitrate,
			NativeCompatible: e.nativeCompatible(),
		})
	}

	for _, v := range videoOnly {
		c := Candidate{
			VideoURL:         v.URL,
			Container:        v.Container,
			Quality:          v.Quality,
			Rank:             parseRank(v.Quality),
			Bitrate:          v.Bitrate,
			NativeCompatible: v.nativeCompatible(),
		}

		if a := bestAudioFor(v, audioOnly); a != nil {
			c.AudioURL = a.URL
			c.Bitrate = v.Bitrate + a.Bitrate
			c.NativeCompatible = c.NativeCompatible && a.nativeCompatible()
		}

		candidates = append(candidates, c)
	}

	return candidates
}

// bestAudioFor picks the audio companion for a video-only entry:
// matching container first, then highest bitrate, then URL order.
// A manifest without audio-only entries yields nil and the video
// plays alone.
func bestAudioFor(video Entry, audioOnly []Entry) *Entry {
	if len(audioOnly) == 0 {
		return nil
	}

	best := &audioOnly[0]
	for i := range audioOnly[1:] {
		a := &audioOnly[i+1]
		if betterAudio(video, a, best) {
			best = a
		}
	}
	return best
}

// betterAudio reports whether a beats b as a companion for video.
func betterAudio(video Entry, a, b *Entry) bool {
	am, bm := a.Container == video.Container, b.Container == video.Container
	if am != bm {
		return am
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	return a.URL < b.URL
}

// Quality Label Parsing - resolution ranks are extracted from free-form labels.
var (
	kPattern      = regexp.MustCompile(`(?P<k>\d{1,2})[kK]`)
	heightPattern = regexp.MustCompile(`(?P<height>\d{3,4})`)
)

// parseRank extracts a comparable vertical resolution from a quality label.
// "1080p" and "1080" yield 1080; "4K" style labels map to n*540 lines;
// anything unparseable ranks zero.
func parseRank(quality string) int {
	if groups := util.ReGroups(kPattern, quality); groups["k"] != "" {
		k, err := strconv.Atoi(groups["k"])
		if err == nil {
			return k * 540
		}
	}

	if groups := util.ReGroups(heightPattern, quality); groups["height"] != "" {
		height, err := strconv.Atoi(groups["height"])
		if err == nil {
			return height
		}
	}

	return 0
}
