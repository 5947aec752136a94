package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultAPIURL is the Spotify Web API base.
const DefaultAPIURL = "https://api.spotify.com/v1"

// Client drives playback on one Spotify Connect device through the Web API.
type Client struct {
	tokens     TokenProvider
	httpClient *http.Client
	apiURL     string
	deviceName string

	mu       sync.Mutex
	deviceID string // resolved lazily, cached across requests
}

// ClientConfig configures the playback client.
type ClientConfig struct {
	// DeviceName is the Spotify Connect device targeted by playback commands,
	// typically the librespot instance running on this host.
	DeviceName string
	// APIURL overrides the Web API base. Empty selects DefaultAPIURL.
	APIURL string
}

// NewClient builds a playback client over the given token provider.
func NewClient(tokens TokenProvider, cfg ClientConfig) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		deviceName: cfg.DeviceName,
	}, nil
}

// startPayload is the body of the play request. Album URIs name a playback
// context; everything else is a literal list of tracks.
type startPayload struct {
	ContextURI string   `json:"context_uri,omitempty"`
	URIs       []string `json:"uris,omitempty"`
}

func startPayloadFor(spotifyURI string) startPayload {
	if isContextURI(spotifyURI) {
		return startPayload{ContextURI: spotifyURI}
	}
	return startPayload{URIs: []string{spotifyURI}}
}

// StartPlayback begins playing the given URI on the configured device.
func (c *Client) StartPlayback(ctx context.Context, spotifyURI string) error {
	body, err := json.Marshal(startPayloadFor(spotifyURI))
	if err != nil {
		return fmt.Errorf("encoding start payload: %w", err)
	}
	if err := c.playerPut(ctx, "/me/player/play", body); err != nil {
		return fmt.Errorf("starting playback of %s: %w", spotifyURI, err)
	}
	log.Printf("Started playback of %s", spotifyURI)
	return nil
}

// StopPlayback pauses playback on the configured device.
func (c *Client) StopPlayback(ctx context.Context) error {
	if err := c.playerPut(ctx, "/me/player/pause", nil); err != nil {
		return fmt.Errorf("stopping playback: %w", err)
	}
	log.Println("Stopped playback")
	return nil
}

// playerPut issues an authenticated PUT against a player endpoint, targeting
// the resolved device.
func (c *Client) playerPut(ctx context.Context, path string, body []byte) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}
	deviceID, err := c.resolveDevice(ctx, token)
	if err != nil {
		return err
	}

	u := c.apiURL + path + "?device_id=" + url.QueryEscape(deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		if resp.StatusCode == http.StatusNotFound {
			// The cached device ID goes stale when librespot restarts.
			c.forgetDevice()
		}
		return fmt.Errorf("spotify returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *Client) cachedDevice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Client) rememberDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

func (c *Client) forgetDevice() {
	c.rememberDevice("")
}

// resolveDevice looks up the Connect device ID for the configured device name.
// The ID is cached until a player request reports the device gone.
func (c *Client) resolveDevice(ctx context.Context, token string) (string, error) {
	if id := c.cachedDevice(); id != "" {
		return id, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/me/player/devices", nil)
	if err != nil {
		return "", fmt.Errorf("building device lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("device lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return "", fmt.Errorf("device lookup returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		Devices []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding device list: %w", err)
	}
	for _, d := range payload.Devices {
		if d.Name == c.deviceName {
			c.rememberDevice(d.ID)
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("spotify connect device %q not found", c.deviceName)
}
