package manifest

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseDocument(t *testing.T) {
	Convey("ParseDocument", t, func() {
		Convey("Parses a canonical document", func() {
			raw := []byte(`{
				"title": "Voyage of Time",
				"source": "invidious",
				"duration": 5400,
				"streams": [
					{"url": "https://cdn.example.com/v.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": true}
				]
			}`)

			doc, err := ParseDocument(raw)
			So(err, ShouldBeNil)
			So(doc.Title, ShouldEqual, "Voyage of Time")
			So(doc.Source, ShouldEqual, "invidious")
			So(doc.Duration, ShouldEqual, 5400)
			So(doc.Streams, ShouldHaveLength, 1)
			So(doc.Streams[0].Combined(), ShouldBeTrue)
		})

		Convey("Accepts an empty streams list", func() {
			doc, err := ParseDocument([]byte(`{"title": "T", "streams": []}`))
			So(err, ShouldBeNil)
			So(doc.Streams, ShouldBeEmpty)
		})

		Convey("Rejects malformed JSON", func() {
			_, err := ParseDocument([]byte(`{"title": "T", "streams": [`))
			So(errors.Is(err, ErrManifest), ShouldBeTrue)
		})

		Convey("Rejects a missing title", func() {
			_, err := ParseDocument([]byte(`{"streams": []}`))
			So(errors.Is(err, ErrManifest), ShouldBeTrue)
		})

		Convey("Rejects an absent streams key", func() {
			_, err := ParseDocument([]byte(`{"title": "T"}`))
			So(errors.Is(err, ErrManifest), ShouldBeTrue)
		})

		Convey("Rejects non-JSON bytes", func() {
			_, err := ParseDocument([]byte(`<html>not a manifest</html>`))
			So(errors.Is(err, ErrManifest), ShouldBeTrue)
		})
	})
}

// policyProbe is the §4.2 knob scenario: one compatible 1080p stream
// against one incompatible 4K stream.
var policyProbe = []byte(`{
	"title": "Knob",
	"streams": [
		{"url": "https://cdn.example.com/hd.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": true},
		{"url": "https://cdn.example.com/uhd.webm", "container": "webm", "quality": "4K", "has_video": true, "has_audio": true}
	]
}`)

func TestResolvePolicies(t *testing.T) {
	Convey("Quality-first policy", t, func() {
		selection, err := NewResolver(PreferQuality).Resolve(policyProbe)
		So(err, ShouldBeNil)

		Convey("Picks the 4K stream despite incompatibility", func() {
			So(selection.Primary.Quality, ShouldEqual, "4K")
			So(selection.Primary.Rank, ShouldEqual, 2160)
			So(selection.NativeCompatible(), ShouldBeFalse)
		})

		Convey("Keeps the compatible stream as an alternate", func() {
			So(selection.Alternates, ShouldHaveLength, 1)
			So(selection.Alternates[0].Quality, ShouldEqual, "1080p")
			So(selection.Alternates[0].NativeCompatible, ShouldBeTrue)
		})
	})

	Convey("Compatibility-first policy", t, func() {
		selection, err := NewResolver(PreferCompatible).Resolve(policyProbe)
		So(err, ShouldBeNil)

		Convey("Picks the compatible 1080p stream", func() {
			So(selection.Primary.Quality, ShouldEqual, "1080p")
			So(selection.NativeCompatible(), ShouldBeTrue)
		})

		Convey("Keeps the 4K stream as an alternate", func() {
			So(selection.Alternates, ShouldHaveLength, 1)
			So(selection.Alternates[0].Quality, ShouldEqual, "4K")
		})
	})
}

func TestResolveSplitStreams(t *testing.T) {
	Convey("Split stream pairing", t, func() {
		raw := []byte(`{
			"title": "Split",
			"streams": [
				{"url": "https://cdn.example.com/v2160.mp4", "container": "mp4", "quality": "2160p", "bitrate": 12000000, "has_video": true, "has_audio": false},
				{"url": "https://cdn.example.com/v720.mp4", "container": "mp4", "quality": "720p", "bitrate": 2000000, "has_video": true, "has_audio": true},
				{"url": "https://cdn.example.com/a-low.mp4", "container": "mp4", "bitrate": 64000, "has_video": false, "has_audio": true},
				{"url": "https://cdn.example.com/a-high.mp4", "container": "mp4", "bitrate": 128000, "has_video": false, "has_audio": true},
				{"url": "https://cdn.example.com/a.webm", "container": "webm", "bitrate": 160000, "has_video": false, "has_audio": true}
			]
		}`)

		selection, err := NewResolver(PreferQuality).Resolve(raw)
		So(err, ShouldBeNil)

		Convey("Pairs the top video with the matching-container, highest-bitrate audio", func() {
			So(selection.Primary.VideoURL, ShouldEqual, "https://cdn.example.com/v2160.mp4")
			So(selection.Primary.AudioURL, ShouldEqual, "https://cdn.example.com/a-high.mp4")
			So(selection.Primary.Split(), ShouldBeTrue)
			So(selection.Primary.Bitrate, ShouldEqual, int64(12128000))
		})

		Convey("The combined stream stays available as an alternate", func() {
			So(selection.Alternates, ShouldHaveLength, 1)
			So(selection.Alternates[0].VideoURL, ShouldEqual, "https://cdn.example.com/v720.mp4")
			So(selection.Alternates[0].Split(), ShouldBeFalse)
		})
	})

	Convey("Combined beats split on equal rank", t, func() {
		raw := []byte(`{
			"title": "Tie",
			"streams": [
				{"url": "https://cdn.example.com/b-video.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": false},
				{"url": "https://cdn.example.com/b-audio.mp4", "container": "mp4", "has_video": false, "has_audio": true},
				{"url": "https://cdn.example.com/a-combined.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": true}
			]
		}`)

		selection, err := NewResolver(PreferQuality).Resolve(raw)
		So(err, ShouldBeNil)
		So(selection.Primary.VideoURL, ShouldEqual, "https://cdn.example.com/a-combined.mp4")
	})
}

func TestResolveEligibility(t *testing.T) {
	Convey("Eligibility", t, func() {
		Convey("Zero streams yield ErrNoEligibleStream", func() {
			_, err := NewResolver(PreferQuality).Resolve([]byte(`{"title": "Empty", "streams": []}`))
			So(errors.Is(err, ErrNoEligibleStream), ShouldBeTrue)
		})

		Convey("Audio-only manifests yield ErrNoEligibleStream", func() {
			raw := []byte(`{
				"title": "Podcast",
				"streams": [
					{"url": "https://cdn.example.com/a.m4a", "container": "m4a", "has_video": false, "has_audio": true}
				]
			}`)
			_, err := NewResolver(PreferQuality).Resolve(raw)
			So(errors.Is(err, ErrNoEligibleStream), ShouldBeTrue)
		})

		Convey("A lone video-only stream plays silent", func() {
			raw := []byte(`{
				"title": "Silent",
				"streams": [
					{"url": "https://cdn.example.com/v.mp4", "container": "mp4", "quality": "480p", "has_video": true, "has_audio": false}
				]
			}`)
			selection, err := NewResolver(PreferQuality).Resolve(raw)
			So(err, ShouldBeNil)
			So(selection.Primary.Split(), ShouldBeFalse)
		})
	})
}

func TestResolveDeterminism(t *testing.T) {
	Convey("Resolution is deterministic", t, func() {
		raw := []byte(`{
			"title": "Det",
			"streams": [
				{"url": "https://b.example.com/v.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": true},
				{"url": "https://a.example.com/v.mp4", "container": "mp4", "quality": "1080p", "has_video": true, "has_audio": true},
				{"url": "https://c.example.com/v.webm", "container": "webm", "quality": "1080p", "has_video": true, "has_audio": true}
			]
		}`)

		resolver := NewResolver(PreferQuality)
		first, err := resolver.Resolve(raw)
		So(err, ShouldBeNil)

		for i := 0; i < 10; i++ {
			again, err := resolver.Resolve(raw)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, first)
		}

		Convey("Equal candidates fall back to container then URL order", func() {
			So(first.Primary.VideoURL, ShouldEqual, "https://a.example.com/v.mp4")
			So(first.Alternates[0].VideoURL, ShouldEqual, "https://b.example.com/v.mp4")
			So(first.Alternates[1].VideoURL, ShouldEqual, "https://c.example.com/v.webm")
		})
	})
}

func TestQualityHint(t *testing.T) {
	Convey("Quality hint", t, func() {
		raw := []byte(`{
			"title": "Hint",
			"streams": [
				{"url": "https://cdn.example.com/uhd.mp4", "container": "mp4", "quality": "2160p", "has_video": true, "has_audio": true},
				{"url": "https://cdn.example.com/hd.mp4", "container": "mp4", "quality": "720p", "has_video": true, "has_audio": true}
			]
		}`)

		resolver := NewResolver(PreferQuality)
		resolver.SetQualityHint("720")

		selection, err := resolver.Resolve(raw)
		So(err, ShouldBeNil)
		So(selection.Primary.Quality, ShouldEqual, "720p")
	})
}

func TestParseRank(t *testing.T) {
	Convey("parseRank", t, func() {
		cases := map[string]int{
			"1080p":      1080,
			"720p60":     720,
			"2160p":      2160,
			"4K":         2160,
			"4k60":       2160,
			"8K":         4320,
			"480":        480,
			"HEVC 1080p": 1080,
			"audio only": 0,
			"":           0,
		}

		for label, want := range cases {
			So(parseRank(label), ShouldEqual, want)
		}
	})
}
