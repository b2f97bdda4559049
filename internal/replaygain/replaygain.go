// Package replaygain computes the linear gain multiplier applied to decoded
// audio from the ReplayGain metadata a track carries. It is a pure function
// of the tags and the configured mode.
package replaygain

import "math"

// Mode selects which gain tag is applied.
type Mode int

const (
	ModeOff Mode = iota
	ModeTrack
	ModeAlbum
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "Off"
	case ModeTrack:
		return "Track"
	case ModeAlbum:
		return "Album"
	default:
		return "Unknown"
	}
}

// ParseMode maps a config value to a Mode. Unrecognized values mean off.
func ParseMode(s string) Mode {
	switch s {
	case "track":
		return ModeTrack
	case "album":
		return ModeAlbum
	default:
		return ModeOff
	}
}

// Tags holds the ReplayGain values a server reports for a track. Nil fields
// mean the tag is absent.
type Tags struct {
	TrackGain    *float64 // dB
	AlbumGain    *float64 // dB
	TrackPeak    *float64 // linear peak sample value
	AlbumPeak    *float64
	FallbackGain *float64 // dB, server-provided default when tags are missing
}

// Source identifies which metadata the multiplier was derived from, so a
// caller can display it.
type Source int

const (
	SourceNone Source = iota
	SourceTrack
	SourceAlbum
	SourceFallback
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceTrack:
		return "track"
	case SourceAlbum:
		return "album"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the computed gain.
type Result struct {
	Multiplier float64
	GainDB     float64
	Source     Source
}

// Gain ceiling applied when no peak information is available to clamp
// against. +12 dB is already far beyond sane ReplayGain values.
const maxGainDB = 12.0

// Normalize computes the clamped linear multiplier for the given tags and
// mode. When the selected mode's gain is absent it falls back to the other
// gain tag, then to the server's fallback gain, then to unity.
func Normalize(tags Tags, mode Mode) Result {
	if mode == ModeOff {
		return Result{Multiplier: 1.0, Source: SourceNone}
	}

	gainDB, peak, source := selectGain(tags, mode)
	if source == SourceNone {
		return Result{Multiplier: 1.0, Source: SourceNone}
	}

	if gainDB > maxGainDB {
		gainDB = maxGainDB
	}
	mult := math.Pow(10, gainDB/20)

	// Keep gain*peak below full scale so normalization never introduces
	// clipping the original signal did not have.
	if peak != nil && *peak > 0 && mult**peak > 1.0 {
		mult = 1.0 / *peak
	}

	return Result{Multiplier: mult, GainDB: gainDB, Source: source}
}

func selectGain(tags Tags, mode Mode) (float64, *float64, Source) {
	type candidate struct {
		gain   *float64
		peak   *float64
		source Source
	}

	var order []candidate
	switch mode {
	case ModeAlbum:
		order = []candidate{
			{tags.AlbumGain, albumPeak(tags), SourceAlbum},
			{tags.TrackGain, trackPeak(tags), SourceTrack},
			{tags.FallbackGain, nil, SourceFallback},
		}
	default: // ModeTrack
		order = []candidate{
			{tags.TrackGain, trackPeak(tags), SourceTrack},
			{tags.AlbumGain, albumPeak(tags), SourceAlbum},
			{tags.FallbackGain, nil, SourceFallback},
		}
	}

	for _, c := range order {
		if c.gain != nil {
			return *c.gain, c.peak, c.source
		}
	}
	return 0, nil, SourceNone
}

// trackPeak prefers the track peak, falling back to the album peak.
func trackPeak(tags Tags) *float64 {
	if tags.TrackPeak != nil {
		return tags.TrackPeak
	}
	return tags.AlbumPeak
}

func albumPeak(tags Tags) *float64 {
	if tags.AlbumPeak != nil {
		return tags.AlbumPeak
	}
	return tags.TrackPeak
}
