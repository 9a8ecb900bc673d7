package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"plusload/pkg/config"
	"plusload/pkg/data"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://jumpg-api.tokyo-cdn.com"

	EndpointMangaViewer = "manga_viewer"
	EndpointTitleDetail = "title_detailV3"

	defaultUserAgent = "JumpPlus/1 CFNetwork/1333.0.4 Darwin/21.5.0"

	defaultViewerCacheSize = 512
	defaultTitleCacheSize  = 256
)

// Recorder receives every raw payload the client fetches. Implementations
// must not fail the fetch; capture problems are theirs to log.
type Recorder interface {
	Capture(endpoint, identifier, requestURL string, params url.Values, response []byte)
}

// Options configures a Client. Zero values select production defaults.
type Options struct {
	BaseURL         string
	Auth            config.AuthSettings
	Quality         string
	Split           bool
	ViewerCacheSize int
	TitleCacheSize  int
	Recorder        Recorder
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client fetches and parses viewer and title-detail payloads, keeping a
// bounded LRU cache per payload kind. One client instance is owned by one
// loader; the caches are not safe for sharing.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	auth        config.AuthSettings
	quality     string
	split       bool
	recorder    Recorder
	logger      *slog.Logger
	viewerCache *lruCache[*data.Viewer]
	titleCache  *lruCache[*data.TitleDetail]
}

// NewClient builds a client with a retrying transport.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if _, ok := httpClient.Transport.(*retryTransport); !ok {
		httpClient.Transport = newRetryTransport(httpClient.Transport)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	quality := opts.Quality
	if quality == "" {
		quality = "super_high"
	}
	viewerSize := opts.ViewerCacheSize
	if viewerSize <= 0 {
		viewerSize = defaultViewerCacheSize
	}
	titleSize := opts.TitleCacheSize
	if titleSize <= 0 {
		titleSize = defaultTitleCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		auth:        opts.Auth,
		quality:     quality,
		split:       opts.Split,
		recorder:    opts.Recorder,
		logger:      logger,
		viewerCache: newLRUCache[*data.Viewer](viewerSize),
		titleCache:  newLRUCache[*data.TitleDetail](titleSize),
	}
}

func cacheKey(id int) string {
	return strconv.Itoa(id)
}

func (c *Client) authParams() url.Values {
	params := url.Values{}
	for key, value := range c.auth.QueryParams() {
		params.Set(key, value)
	}
	return params
}

func (c *Client) get(ctx context.Context, requestURL string, params url.Values) ([]byte, error) {
	full := requestURL
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: requestURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) capture(endpoint, identifier, requestURL string, params url.Values, response []byte) {
	if c.recorder == nil {
		return
	}
	c.recorder.Capture(endpoint, identifier, requestURL, params, response)
}

// FetchViewer returns the parsed viewer payload for one chapter, from
// cache when possible.
func (c *Client) FetchViewer(ctx context.Context, chapterID int) (*data.Viewer, error) {
	key := cacheKey(chapterID)
	if viewer, ok := c.viewerCache.Get(key); ok {
		return viewer, nil
	}

	requestURL := c.baseURL + "/api/manga_viewer"
	params := c.authParams()
	params.Set("chapter_id", strconv.Itoa(chapterID))
	params.Set("img_quality", c.quality)
	if c.split {
		params.Set("split", "yes")
	} else {
		params.Set("split", "no")
	}

	content, err := c.get(ctx, requestURL, params)
	if err != nil {
		return nil, fmt.Errorf("fetch viewer %d: %w", chapterID, err)
	}
	c.capture(EndpointMangaViewer, key, requestURL, params, content)

	viewer, err := ParseViewer(content)
	if err != nil {
		return nil, err
	}
	c.viewerCache.Put(key, viewer)
	return viewer, nil
}

// FetchTitleDetail returns the parsed title-detail payload for one title,
// from cache when possible.
func (c *Client) FetchTitleDetail(ctx context.Context, titleID int) (*data.TitleDetail, error) {
	key := cacheKey(titleID)
	if detail, ok := c.titleCache.Get(key); ok {
		return detail, nil
	}

	requestURL := c.baseURL + "/api/title_detailV3"
	params := c.authParams()
	params.Set("title_id", strconv.Itoa(titleID))

	content, err := c.get(ctx, requestURL, params)
	if err != nil {
		return nil, fmt.Errorf("fetch title %d: %w", titleID, err)
	}
	c.capture(EndpointTitleDetail, key, requestURL, params, content)

	detail, err := ParseTitleDetail(content)
	if err != nil {
		return nil, err
	}
	c.titleCache.Put(key, detail)
	return detail, nil
}

// DownloadImage fetches one page image blob.
func (c *Client) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	content, err := c.get(ctx, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	return content, nil
}

// ClearRunCaches drops every cached payload. Called at run start and end.
func (c *Client) ClearRunCaches() {
	c.viewerCache.Clear()
	c.titleCache.Clear()
}

// ClearTitleCaches drops one title's detail entry plus the viewer entries
// of its chapters, bounding memory on multi-title runs.
func (c *Client) ClearTitleCaches(titleID int, chapterIDs []int) {
	c.titleCache.Delete(cacheKey(titleID))
	for _, chapterID := range chapterIDs {
		c.viewerCache.Delete(cacheKey(chapterID))
	}
}
