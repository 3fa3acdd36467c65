package video

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/dieselnoi/academy/internal/pkg/env"
)

const defaultMuxAPIBaseURL = "https://api.mux.com"

// Client talks to the Mux video API.
type Client struct {
	http *resty.Client
}

// NewClientFromEnv creates a Mux client using MUX_TOKEN_ID / MUX_TOKEN_SECRET.
func NewClientFromEnv() *Client {
	c := resty.New().
		SetBaseURL(env.GetEnv("MUX_API_BASE_URL", defaultMuxAPIBaseURL)).
		SetBasicAuth(env.GetEnv("MUX_TOKEN_ID", ""), env.GetEnv("MUX_TOKEN_SECRET", ""))
	return &Client{http: c}
}

// DirectUpload is the answer to a direct-upload request: the browser PUTs
// the video file straight to URL.
type DirectUpload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type directUploadResponse struct {
	Data struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
}

// CreateDirectUpload asks Mux for a direct-upload URL. The lesson ID rides
// along as passthrough so the asset-ready webhook can find its lesson.
func (c *Client) CreateDirectUpload(lessonID uint, corsOrigin string) (*DirectUpload, error) {
	body := map[string]interface{}{
		"cors_origin": corsOrigin,
		"new_asset_settings": map[string]interface{}{
			"playback_policy": []string{"signed"},
			"passthrough":     strconv.FormatUint(uint64(lessonID), 10),
		},
	}

	var out directUploadResponse
	resp, err := c.http.R().
		SetBody(body).
		SetResult(&out).
		Post("/video/v1/uploads")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mux upload request failed: %s", resp.Status())
	}

	return &DirectUpload{ID: out.Data.ID, URL: out.Data.URL}, nil
}

// Webhook event types we react to.
const (
	EventAssetReady   = "video.asset.ready"
	EventAssetErrored = "video.asset.errored"
)

// WebhookEvent is the subset of a Mux webhook payload the backend consumes.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID          string  `json:"id"`
		Passthrough string  `json:"passthrough"`
		Duration    float64 `json:"duration"`
		PlaybackIDs []struct {
			ID     string `json:"id"`
			Policy string `json:"policy"`
		} `json:"playback_ids"`
		Errors struct {
			Type     string   `json:"type"`
			Messages []string `json:"messages"`
		} `json:"errors"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a raw webhook body.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// LessonID extracts the passthrough lesson reference, 0 when absent.
func (e *WebhookEvent) LessonID() uint {
	id, err := strconv.ParseUint(e.Data.Passthrough, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// FirstPlaybackID returns the asset's first playback ID, empty when none.
func (e *WebhookEvent) FirstPlaybackID() string {
	if len(e.Data.PlaybackIDs) == 0 {
		return ""
	}
	return e.Data.PlaybackIDs[0].ID
}

// DurationMinutes converts the asset duration to whole minutes, rounding up
// so a 61-second video counts as 2 minutes.
func (e *WebhookEvent) DurationMinutes() uint {
	if e.Data.Duration <= 0 {
		return 0
	}
	return uint(math.Ceil(e.Data.Duration / 60.0))
}
