// Package content fetches third-party pages and media that link unfurlers present in
// chat: page titles, inline images, and Steam store and workshop details.
package content

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultUserAgent    = "sybot/1.0"
	defaultRatePerSec   = 2
	defaultBurst        = 4
	maxBodySize         = 8 << 20
	defaultStoreURL     = "https://store.steampowered.com"
	defaultCommunityURL = "https://steamcommunity.com"

	// NoTitle is returned by PageTitle when a page has no <title>.
	NoTitle = "No Title"
)

// Config tunes the outbound client. Zero values select defaults.
type Config struct {
	HTTPClient        *http.Client
	UserAgent         string
	RequestsPerSecond float64
	Burst             int

	StoreURL     string
	CommunityURL string
}

// Client performs rate-limited fetches shared by every unfurler.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	log       *slog.Logger

	storeURL     string
	communityURL string
}

func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = defaultRatePerSec
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		http:         httpClient,
		userAgent:    userAgent,
		limiter:      rate.NewLimiter(rate.Limit(perSecond), burst),
		log:          log.With("component", "content.client"),
		storeURL:     baseURL(cfg.StoreURL, defaultStoreURL),
		communityURL: baseURL(cfg.CommunityURL, defaultCommunityURL),
	}
}

func baseURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

// PageTitle returns the text of the first <title> element of the page at url, or
// NoTitle when there is none.
func (c *Client) PageTitle(ctx context.Context, url string) (string, error) {
	body, _, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	doc, err := parseHTML(body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}

	title := findFirst(doc, isElement("title"))
	if title == nil {
		return NoTitle, nil
	}
	return strings.TrimSpace(textContent(title)), nil
}

// ImageDataURI downloads the image at url and returns it as a base64 data URI.
func (c *Client) ImageDataURI(ctx context.Context, url string) (string, error) {
	body, contentType, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return DataURI(contentType, body), nil
}

// DataURI encodes data as a base64 data URI of the given media type.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("wait for fetch slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}

	c.log.Debug("Fetched content", "url", url, "bytes", len(body), "duration", time.Since(started))
	return body, resp.Header.Get("Content-Type"), nil
}

// StatusError is returned when a fetch answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from a fetch.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
