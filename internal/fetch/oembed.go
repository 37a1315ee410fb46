// Package fetch pulls mix metadata from provider endpoints and stages it
// for canonicalization. YouTube and SoundCloud are served by their public
// oEmbed endpoints; 1001tracklists is registered but requires licensed API
// access and rejects every fetch with a validation error.
package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/cratedig/cratedig/internal/extid"
	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/resilience"
)

// Fetcher retrieves metadata for one source URL on one provider.
type Fetcher interface {
	Provider() string
	Fetch(ctx context.Context, sourceURL string) (*model.StagedRecord, error)
}

// ClientOptions configures the shared oEmbed HTTP client.
type ClientOptions struct {
	UserAgent    string
	Timeout      time.Duration
	RateLimiters map[string]*rate.Limiter
	Retry        resilience.Policy
}

// DefaultRateLimiters returns per-host limiters for the known provider
// endpoints.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"www.youtube.com": rate.NewLimiter(5, 5),
		"soundcloud.com":  rate.NewLimiter(5, 5),
	}
}

// Client is a rate-limited, retrying HTTP client for provider endpoints.
type Client struct {
	http      *http.Client
	userAgent string
	limiters  map[string]*rate.Limiter
	retry     resilience.Policy
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cratedig/1.0"
	}
	if opts.RateLimiters == nil {
		opts.RateLimiters = DefaultRateLimiters()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: opts.UserAgent,
		limiters:  opts.RateLimiters,
		retry:     opts.Retry,
	}
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(10, 10)
	}
	if lim, ok := c.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(10, 10)
}

// GetJSON fetches endpoint with retry on transient failures and decodes the
// JSON body into out. A 404 or 401 means the resource is gone or private;
// both come back as a ValidationError so callers never retry them.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiterFor(endpoint).Wait(ctx); err != nil {
		return eris.Wrap(err, "fetch: rate limiter wait")
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetch: create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Retryable(
				eris.Errorf("fetch: http %d from %s", resp.StatusCode, endpoint),
				resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return nil, model.NewValidationError(
				"resource unavailable (" + resp.Status + "): " + endpoint)
		default:
			return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, endpoint)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "fetch: decode response")
	}
	return nil
}

// oembedResponse is the subset of the oEmbed payload both providers return.
type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Description  string `json:"description"`
}

// YouTubeFetcher resolves watch URLs through the YouTube oEmbed endpoint.
type YouTubeFetcher struct {
	client   *Client
	endpoint string
}

func NewYouTube(client *Client) *YouTubeFetcher {
	return &YouTubeFetcher{client: client, endpoint: "https://www.youtube.com/oembed"}
}

// WithEndpoint overrides the oEmbed endpoint; tests point it at a local
// server.
func (f *YouTubeFetcher) WithEndpoint(endpoint string) *YouTubeFetcher {
	f.endpoint = endpoint
	return f
}

func (f *YouTubeFetcher) Provider() string { return extid.ProviderYouTube }

func (f *YouTubeFetcher) Fetch(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	videoID := youtubeVideoID(sourceURL)
	if videoID == "" {
		return nil, model.NewValidationError("not a recognizable youtube watch url: " + sourceURL)
	}

	var resp oembedResponse
	if err := f.client.GetJSON(ctx, f.endpoint+"?format=json&url="+url.QueryEscape(sourceURL), &resp); err != nil {
		return nil, err
	}

	rec := &model.StagedRecord{
		Provider:   extid.ProviderYouTube,
		SourceURL:  sourceURL,
		ExternalID: videoID,
		RawTitle:   resp.Title,
		RawArtist:  resp.AuthorName,
		ChannelID:  youtubeChannelID(resp.AuthorURL),
		Metadata:   map[string]string{},
	}
	if resp.ThumbnailURL != "" {
		rec.Metadata["thumbnail_url"] = resp.ThumbnailURL
	}
	if resp.AuthorURL != "" {
		rec.Metadata["channel_url"] = resp.AuthorURL
	}
	return rec, nil
}

// youtubeVideoID extracts the video ID from watch, share and shorts URLs.
func youtubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		return strings.Trim(u.Path, "/")
	case strings.HasSuffix(u.Host, "youtube.com"):
		if id := u.Query().Get("v"); id != "" {
			return id
		}
		for _, prefix := range []string{"/shorts/", "/live/", "/embed/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				return strings.Trim(rest, "/")
			}
		}
	}
	return ""
}

// youtubeChannelID pulls the channel identifier out of an author URL like
// https://www.youtube.com/channel/UC... or https://www.youtube.com/@handle.
func youtubeChannelID(authorURL string) string {
	u, err := url.Parse(authorURL)
	if err != nil {
		return ""
	}
	if rest, ok := strings.CutPrefix(u.Path, "/channel/"); ok {
		return strings.Trim(rest, "/")
	}
	return strings.Trim(u.Path, "/")
}

// SoundCloudFetcher resolves track URLs through the SoundCloud oEmbed
// endpoint. SoundCloud does not expose a numeric ID via oEmbed, so the
// URL path (user/slug) serves as the stable external identifier.
type SoundCloudFetcher struct {
	client   *Client
	endpoint string
}

func NewSoundCloud(client *Client) *SoundCloudFetcher {
	return &SoundCloudFetcher{client: client, endpoint: "https://soundcloud.com/oembed"}
}

func (f *SoundCloudFetcher) WithEndpoint(endpoint string) *SoundCloudFetcher {
	f.endpoint = endpoint
	return f
}

func (f *SoundCloudFetcher) Provider() string { return extid.ProviderSoundCloud }

func (f *SoundCloudFetcher) Fetch(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	trackPath := soundcloudTrackPath(sourceURL)
	if trackPath == "" {
		return nil, model.NewValidationError("not a recognizable soundcloud track url: " + sourceURL)
	}

	var resp oembedResponse
	if err := f.client.GetJSON(ctx, f.endpoint+"?format=json&url="+url.QueryEscape(sourceURL), &resp); err != nil {
		return nil, err
	}

	rec := &model.StagedRecord{
		Provider:       extid.ProviderSoundCloud,
		SourceURL:      sourceURL,
		ExternalID:     trackPath,
		RawTitle:       resp.Title,
		RawDescription: resp.Description,
		RawArtist:      resp.AuthorName,
		Metadata:       map[string]string{},
	}
	if resp.ThumbnailURL != "" {
		rec.Metadata["thumbnail_url"] = resp.ThumbnailURL
	}
	return rec, nil
}

func soundcloudTrackPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.HasSuffix(u.Host, "soundcloud.com") {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if strings.Count(path, "/") != 1 {
		return ""
	}
	return path
}

// TracklistsFetcher holds the 1001tracklists slot in the registry. The site
// has no public metadata API; every fetch is rejected as a validation error
// so jobs against it fail fast instead of retrying.
type TracklistsFetcher struct{}

func NewTracklists() *TracklistsFetcher { return &TracklistsFetcher{} }

func (f *TracklistsFetcher) Provider() string { return extid.Provider1001Tracklists }

func (f *TracklistsFetcher) Fetch(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	return nil, model.NewValidationError("1001tracklists ingestion requires licensed API access")
}
