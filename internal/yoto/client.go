// package yoto implements the HTTP client for the Yoto content API.
//
// The client owns all transport policy: request rate limiting, bounded
// exponential backoff on transient failures, a single token refresh on 401,
// Retry-After handling on 429, and mapping of HTTP failures onto the typed
// [APIError] taxonomy. Callers see either a result or a terminal error.
package yoto

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"yotoup/internal/models"
	"yotoup/internal/shared"
)

const defaultBaseURL = "https://api.yotoplay.com"

// TokenProvider supplies bearer tokens for API requests.
//
// Implemented by [Auth]; tests substitute a stub.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// UploadSlot is the response to an upload-URL request.
//
// An empty UploadURL means the API already has content with this hash and
// the PUT can be skipped.
type UploadSlot struct {
	UploadURL string `json:"uploadUrl"`
	UploadID  string `json:"uploadId"`
}

// Transcode describes a completed remote transcoding job.
type Transcode struct {
	SHA256   string
	Format   string
	Duration float64
}

// DisplayIcon is one entry of the display icon manifest.
type DisplayIcon struct {
	DisplayIconID string   `json:"displayIconId"`
	MediaID       string   `json:"mediaId"`
	Title         string   `json:"title,omitempty"`
	URL           string   `json:"url"`
	Public        bool     `json:"public"`
	PublicTags    []string `json:"publicTags,omitempty"`
}

// Client is the Yoto API client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	auth         TokenProvider
	limiter      *rate.Limiter
	logger       *log.Logger
	maxRetries   int
	retryDelay   time.Duration
	retryBackoff float64
	pollInterval time.Duration
	pollAttempts int
}

// NewClient creates a Yoto API client from configuration.
//
// The HTTP client defaults to [http.DefaultClient]; the logger defaults to
// a stderr logger.
func NewClient(cfg shared.YotoConfig, auth TokenProvider, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := time.Duration(cfg.RetryDelay * float64(time.Second))
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff < 1 {
		retryBackoff = 2.0
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5.0
	}
	pollInterval := time.Duration(cfg.PollInterval * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	pollAttempts := cfg.PollAttempts
	if pollAttempts <= 0 {
		pollAttempts = 120
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		auth:         auth,
		limiter:      rate.NewLimiter(rate.Limit(rateLimit), 1),
		logger:       shared.WithLogger(logger, "component", "yoto"),
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,
		retryBackoff: retryBackoff,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
	}
}

// request performs an authenticated API request with the client's retry policy.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	var lastErr error

	refreshed := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Kind: KindTimeout, Message: err.Error()}
		}

		fullURL := c.baseURL + path
		if len(query) > 0 {
			fullURL += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, &APIError{Kind: KindAuth, Message: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &APIError{Kind: KindTimeout, Message: err.Error()}
			}
			lastErr = &APIError{Kind: KindNetwork, Message: err.Error()}
			c.logger.Warn("network error, retrying", "method", method, "path", path, "attempt", attempt+1, "err", err)
			if sleepErr := c.backoff(ctx, attempt); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &APIError{Kind: KindNetwork, Message: readErr.Error()}
			if sleepErr := c.backoff(ctx, attempt); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		apiErr := statusError(resp.StatusCode, string(respBody), retryAfter(resp))

		switch apiErr.Kind {
		case KindAuth:
			// One refresh-and-retry, then the error is surfaced.
			if !refreshed {
				refreshed = true
				if _, refreshErr := c.auth.Refresh(ctx); refreshErr == nil {
					continue
				}
			}
			return nil, apiErr
		case KindRateLimited:
			if attempt < c.maxRetries {
				delay := apiErr.RetryAfter
				if delay <= 0 {
					delay = c.delayFor(attempt)
				}
				c.logger.Warn("rate limited, waiting", "delay", delay, "path", path)
				if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
					return nil, apiErr
				}
				continue
			}
			return nil, apiErr
		default:
			return nil, apiErr
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &APIError{Kind: KindGeneric, Message: "request retries exhausted"}
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	if attempt >= c.maxRetries {
		return errors.New("retries exhausted")
	}
	return sleepCtx(ctx, c.delayFor(attempt))
}

func (c *Client) delayFor(attempt int) time.Duration {
	delay := float64(c.retryDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.retryBackoff
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// HashFile computes the SHA-256 of the file at path and returns the hex
// digest together with the file bytes.
func HashFile(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// UploadSlot requests a signed upload URL for content with the given hash.
func (c *Client) UploadSlot(ctx context.Context, sha string, filename string) (*UploadSlot, error) {
	query := url.Values{"sha256": {sha}}
	if filename != "" {
		query.Set("filename", filename)
	}

	body, err := c.request(ctx, http.MethodGet, "/media/transcode/audio/uploadUrl", query, nil, "")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Upload UploadSlot `json:"upload"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse upload slot response: %w", err)
	}
	if parsed.Upload.UploadID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "upload slot response missing uploadId"}
	}
	return &parsed.Upload, nil
}

// PutAudio uploads audio bytes to a signed URL.
//
// The signed URL is not part of the API host, so this request bypasses the
// authenticated request path.
func (c *Client) PutAudio(ctx context.Context, uploadURL string, audio []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, string(body), 0)
	}
	return nil
}

// AwaitTranscode polls until the remote transcoding job for uploadID
// completes, up to the configured attempt bound.
func (c *Client) AwaitTranscode(ctx context.Context, uploadID string, loudnorm bool) (*Transcode, error) {
	path := "/media/upload/" + url.PathEscape(uploadID) + "/transcoded"
	query := url.Values{"loudnorm": {strconv.FormatBool(loudnorm)}}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		body, err := c.request(ctx, http.MethodGet, path, query, nil, "")
		if err != nil {
			// Not found means the job is not visible yet; keep polling.
			if KindOf(err) == KindNotFound {
				if sleepErr := sleepCtx(ctx, c.pollInterval); sleepErr != nil {
					return nil, &APIError{Kind: KindTimeout, Message: sleepErr.Error()}
				}
				continue
			}
			return nil, err
		}

		var parsed struct {
			Transcode struct {
				TranscodedSHA256 string `json:"transcodedSha256"`
				TranscodedInfo   *struct {
					Format   string  `json:"format"`
					Duration float64 `json:"duration"`
				} `json:"transcodedInfo"`
			} `json:"transcode"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse transcode response: %w", err)
		}

		if parsed.Transcode.TranscodedSHA256 != "" {
			result := &Transcode{SHA256: parsed.Transcode.TranscodedSHA256}
			if info := parsed.Transcode.TranscodedInfo; info != nil {
				result.Format = info.Format
				result.Duration = info.Duration
			}
			return result, nil
		}

		if sleepErr := sleepCtx(ctx, c.pollInterval); sleepErr != nil {
			return nil, &APIError{Kind: KindTimeout, Message: sleepErr.Error()}
		}
	}

	return nil, &APIError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("transcoding not complete after %d attempts", c.pollAttempts),
	}
}

// GetCard fetches a playlist document by ID.
func (c *Client) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	body, err := c.request(ctx, http.MethodGet, "/content/"+url.PathEscape(cardID), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return parseCard(body)
}

// UpdateCard writes a playlist document back to the API.
func (c *Client) UpdateCard(ctx context.Context, card *models.Card) (*models.Card, error) {
	if card.CardID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "card ID is required for update"}
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}

	body, err := c.request(ctx, http.MethodPost, "/content", nil, payload, "application/json")
	if err != nil {
		return nil, err
	}
	return parseCard(body)
}

// Icons lists display icons. user selects the caller's own uploads instead
// of the public manifest.
func (c *Client) Icons(ctx context.Context, user bool) ([]DisplayIcon, error) {
	path := "/media/displayIcons/user/yoto"
	if user {
		path = "/media/displayIcons/user/me"
	}

	body, err := c.request(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		DisplayIcons []DisplayIcon `json:"displayIcons"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse icon manifest: %w", err)
	}
	return parsed.DisplayIcons, nil
}

// FetchIcon downloads icon bytes from a public URL without authentication.
func (c *Client) FetchIcon(ctx context.Context, iconURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create icon request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, resp.Status, 0)
	}
	return io.ReadAll(resp.Body)
}

// parseCard accepts both {"card": {...}} and bare card payloads.
func parseCard(body []byte) (*models.Card, error) {
	var wrapped struct {
		Card *models.Card `json:"card"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Card != nil {
		return wrapped.Card, nil
	}

	var card models.Card
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("failed to parse card response: %w", err)
	}
	return &card, nil
}
