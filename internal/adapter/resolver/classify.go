// Package resolver holds the link classification shared by the media resolvers.
// Concrete resolvers live in the youtube, ytdlp and mock subpackages.
package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

var (
	youtubeHostRegex = regexp.MustCompile(`^(?:www\.|m\.|music\.)?(youtube\.com|youtu\.be)$`)
	videoIDRegex     = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// IsURL reports whether s looks like an http(s) link.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsYouTubeURL reports whether s points at a YouTube or YouTube Music host.
func IsYouTubeURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return youtubeHostRegex.MatchString(strings.ToLower(u.Hostname()))
}

// Classify sorts a user query into a search, a single video link,
// a playlist link or another link.
func Classify(input string) domain.QueryKind {
	input = strings.TrimSpace(input)
	if !IsURL(input) {
		return domain.QuerySearch
	}
	if !IsYouTubeURL(input) {
		return domain.QueryURL
	}
	if VideoID(input) != "" {
		return domain.QueryVideo
	}
	if PlaylistID(input) != "" {
		return domain.QueryPlaylist
	}
	return domain.QueryURL
}

// VideoID extracts the 11 character video id of a YouTube link, or "".
func VideoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	var id string
	switch host := strings.ToLower(u.Hostname()); {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case youtubeHostRegex.MatchString(host):
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"), strings.HasPrefix(u.Path, "/embed/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	}

	if !videoIDRegex.MatchString(id) {
		return ""
	}
	return id
}

// PlaylistID extracts the list parameter of a YouTube playlist link, or "".
func PlaylistID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !youtubeHostRegex.MatchString(strings.ToLower(u.Hostname())) {
		return ""
	}
	if u.Path != "/playlist" {
		return ""
	}
	return u.Query().Get("list")
}

// CleanVideoURL rebuilds a video link with only its id, dropping timestamps and
// tracking parameters. Links that carry no video id are returned unchanged.
func CleanVideoURL(raw string) string {
	id := VideoID(raw)
	if id == "" {
		return raw
	}
	return WatchURL(id)
}

// WatchURL returns the canonical watch link for a video id.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

// ChannelURL returns the channel page for a channel id, or "" if id is empty.
func ChannelURL(id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://www.youtube.com/channel/%s", id)
}
