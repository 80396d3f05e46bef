// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the dtune playback core.
package domain

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// TrackKind discriminates the playable item variants.
type TrackKind int

const (
	// KindGeneric is a track whose source URL is streamed directly.
	KindGeneric TrackKind = iota
	// KindSingleMedia is a track resolved from a single media link.
	KindSingleMedia
	// KindPlaylistMember is a track enumerated from a playlist.
	KindPlaylistMember
)

// String returns a human-readable track kind.
func (k TrackKind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindSingleMedia:
		return "single_media"
	case KindPlaylistMember:
		return "playlist_member"
	default:
		return "unknown"
	}
}

// RepeatMode is the queue looping policy applied on each advance.
type RepeatMode int

const (
	// RepeatNone drops the head permanently on advance.
	RepeatNone RepeatMode = iota
	// RepeatAll moves the head to the tail on advance.
	RepeatAll
	// RepeatSingle never drops the head; the same track replays.
	RepeatSingle
)

// String returns a human-readable repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the defined repeat modes.
func (m RepeatMode) Valid() bool {
	return m >= RepeatNone && m <= RepeatSingle
}

// ParseRepeatMode parses "none", "all" or "single" (case-insensitive).
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return RepeatNone, nil
	case "all", "queue":
		return RepeatAll, nil
	case "single", "one", "track":
		return RepeatSingle, nil
	default:
		return RepeatNone, NewValidationError("repeat_mode", s, ErrInvalidRepeatMode.Error())
	}
}

// SessionState is the observable state of a playback session.
type SessionState int

const (
	// StateIdle means no connection, or a connection with nothing bound.
	StateIdle SessionState = iota
	// StateJoining means a connection attempt is in flight.
	StateJoining
	// StateReady means connected and not playing.
	StateReady
	// StatePlaying means a resource is bound and playing.
	StatePlaying
	// StatePaused means a resource is bound and paused.
	StatePaused
)

// String returns a human-readable session state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlayerStatus is the state reported by a transport audio player.
type PlayerStatus int

const (
	// PlayerIdle means nothing is bound or the bound resource finished.
	PlayerIdle PlayerStatus = iota
	// PlayerBuffering means a resource is bound but no audio has been sent yet.
	PlayerBuffering
	// PlayerPlaying means audio is flowing.
	PlayerPlaying
	// PlayerPaused means the bound resource is paused.
	PlayerPaused
)

// String returns a human-readable player status.
func (s PlayerStatus) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerBuffering:
		return "buffering"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// InputType describes how a resource's bytes are encoded.
type InputType string

const (
	// InputArbitrary is any container ffmpeg can probe.
	InputArbitrary InputType = "arbitrary"
	// InputWebmOpus is an opus stream in a webm container.
	InputWebmOpus InputType = "webm/opus"
	// InputOggOpus is an opus stream in an ogg container, ready for the voice connection.
	InputOggOpus InputType = "ogg/opus"
)

// Resource is a streamable audio handle bound to a transport player.
//
// When Stream is nil the transport opens SourceURL itself.
// A Resource is single-use: once bound, the transport owns Stream and closes it.
type Resource struct {
	// SourceURL is the page or file URL this resource was produced from
	SourceURL string

	// Stream carries the encoded audio bytes (may be nil)
	Stream io.ReadCloser

	// InputType describes the encoding of Stream or SourceURL
	InputType InputType
}

// Close releases the stream if one is attached.
func (r *Resource) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// MediaInfo is the metadata returned by a resolution service for one media item.
type MediaInfo struct {
	// ID is the provider-defined identifier (e.g. a video id)
	ID string

	// URL is the canonical page URL of the media
	URL string

	// Title is the media title
	Title string

	// Duration is the media length (zero when unknown or live)
	Duration time.Duration

	// Author is the uploader or artist name
	Author string

	// AuthorURL links to the uploader's page
	AuthorURL string

	// AuthorThumbnail is the uploader's avatar URL
	AuthorThumbnail string

	// Thumbnail is the media artwork URL
	Thumbnail string

	// Partial is set when the entry only carries light metadata (playlist enumeration)
	Partial bool
}

// TrackInfo is the read-only metadata view of a track. It never exposes the live resource.
type TrackInfo struct {
	ID                string
	URL               string
	Title             string
	Duration          time.Duration
	DurationFormatted string
	Author            string
	AuthorURL         string
	AuthorThumbnail   string
	Thumbnail         string
	Kind              TrackKind
	PlaylistPosition  int // 1-based, zero for tracks outside a playlist
	RequesterID       string
}

// DurationSeconds returns the duration in whole seconds.
func (i TrackInfo) DurationSeconds() int {
	return int(i.Duration / time.Second)
}

// FormatDuration renders d as m:ss, or h:mm:ss when d spans an hour or more.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ChannelDescriptor identifies the voice channel a session should join.
type ChannelDescriptor struct {
	// GroupID is the guild (group) the channel belongs to
	GroupID string

	// ChannelID is the voice channel identifier
	ChannelID string

	// SelfMute and SelfDeaf are forwarded to the voice gateway
	SelfMute bool
	SelfDeaf bool
}

// QueryKind classifies a user query before track construction.
type QueryKind int

const (
	// QuerySearch is free text to be searched.
	QuerySearch QueryKind = iota
	// QueryVideo is a link to a single media item.
	QueryVideo
	// QueryPlaylist is a link to a playlist.
	QueryPlaylist
	// QueryURL is any other link, streamed as-is.
	QueryURL
)

// String returns a human-readable query kind.
func (k QueryKind) String() string {
	switch k {
	case QuerySearch:
		return "search"
	case QueryVideo:
		return "video"
	case QueryPlaylist:
		return "playlist"
	case QueryURL:
		return "url"
	default:
		return "unknown"
	}
}
