// Package player maps decoded tag requests onto Spotify Connect playback.
package player

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlaybackRequest is the document stored on a tag. The field name matches the
// serialization used by the tag provisioning tools, so existing tags keep
// working.
type PlaybackRequest struct {
	SpotifyURI string `json:"SpotifyUri"`
}

// ParseRequest decodes the JSON document read from a tag.
func ParseRequest(s string) (PlaybackRequest, error) {
	var req PlaybackRequest
	if err := json.Unmarshal([]byte(s), &req); err != nil {
		return PlaybackRequest{}, fmt.Errorf("malformed playback request %q: %w", s, err)
	}
	if req.SpotifyURI == "" {
		return PlaybackRequest{}, fmt.Errorf("playback request %q carries no Spotify URI", s)
	}
	return req, nil
}

// Encode renders the request as the canonical on-tag document.
func (r PlaybackRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding playback request: %w", err)
	}
	return string(data), nil
}

// isContextURI reports whether the URI names a playback context rather than a
// single track. Contexts go in the context_uri field of the start payload;
// individual tracks go in a one-element uris array.
func isContextURI(uri string) bool {
	return strings.HasPrefix(uri, "spotify:album:")
}
