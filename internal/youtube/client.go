// Package youtube resolves video metadata through the YouTube Data API.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var (
	ErrNotYouTube    = errors.New("not a youtube video url")
	ErrVideoNotFound = errors.New("youtube video not found")
)

// Client looks up video titles. It satisfies media.TitleSource.
type Client struct {
	svc *yt.Service
}

// NewClient builds a Data API client authenticated with an API key.
// Extra options are appended, mainly for pointing tests at a local endpoint.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func (c *Client) Title(ctx context.Context, rawURL string) (string, error) {
	id, err := VideoID(rawURL)
	if err != nil {
		return "", err
	}
	resp, err := c.svc.Videos.List([]string{"snippet"}).Id(id).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("listing video %s: %w", id, err)
	}
	for _, item := range resp.Items {
		if item.Snippet != nil && item.Snippet.Title != "" {
			return item.Snippet.Title, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVideoNotFound, id)
}

// VideoID extracts the video id from watch, short-link, shorts and embed URLs.
func VideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotYouTube, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	default:
		return "", ErrNotYouTube
	}

	if id == "" {
		return "", ErrNotYouTube
	}
	return id, nil
}
