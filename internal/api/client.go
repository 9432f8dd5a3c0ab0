package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/calder/lectio/internal/auth"
	"github.com/calder/lectio/internal/config"
	"github.com/calder/lectio/internal/domain"
)

const userAgent = "Lectio/1.0"

// request describes one API call independent of the retry attempt, so a
// rejected request can be replayed verbatim after a credential refresh.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// Client implements domain.SyncAPI against the reading API. It attaches
// bearer credentials, refreshes them through the coordinator on 401, and
// bounds the 401-refresh-retry loop.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	creds       auth.Store
	coordinator *auth.Coordinator
	events      *auth.SessionEvents
	logger      *slog.Logger

	deviceID         string
	maxRetryAttempts int
	proactiveRefresh bool
	refreshBuffer    time.Duration
}

// NewClient creates an authenticated API client
func NewClient(baseURL string, creds auth.Store, coordinator *auth.Coordinator, events *auth.SessionEvents, cfg config.ClientConfig, deviceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetryAttempts
	if maxRetries <= 0 {
		maxRetries = 3
	}
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = 5 * time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: timeout},
		creds:            creds,
		coordinator:      coordinator,
		events:           events,
		logger:           logger,
		deviceID:         deviceID,
		maxRetryAttempts: maxRetries,
		proactiveRefresh: cfg.ProactiveRefresh,
		refreshBuffer:    buffer,
	}
}

// Authenticated reports whether a non-expired access token is available
func (c *Client) Authenticated() bool {
	creds, err := c.creds.Load()
	return err == nil && creds != nil && !auth.TokenExpired(creds.AccessToken)
}

// do performs an authenticated request with bounded retries. out may be nil
// for calls whose response body is not needed.
func (c *Client) do(ctx context.Context, req request, out any, retryCount int) error {
	if retryCount >= c.maxRetryAttempts {
		return domain.ErrMaxRetriesExceeded
	}

	// Refresh ahead of expiry on the first attempt only. Best-effort: the
	// request proceeds whatever the outcome.
	if retryCount == 0 && c.proactiveRefresh {
		if creds, err := c.creds.Load(); err == nil && creds != nil && auth.TokenExpiresWithin(creds.AccessToken, c.refreshBuffer) {
			c.coordinator.PerformRefresh(ctx, c.refreshCredentials)
		}
	}

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, req.query.Encode())
	}

	var bodyReader io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return &domain.EncodingError{Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Lectio-Device", c.deviceID)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if creds, err := c.creds.Load(); err == nil && creds != nil && creds.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	c.logger.Debug("api request", "method", req.method, "url", reqURL, "attempt", retryCount)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("api request failed", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.decode(respBody, out)

	case resp.StatusCode == http.StatusUnauthorized:
		if c.coordinator.PerformRefresh(ctx, c.refreshCredentials) {
			// Replay the original request with the fresh credential
			return c.do(ctx, req, out, retryCount+1)
		}
		return domain.ErrUnauthorized

	case resp.StatusCode >= 400:
		msg := parseErrorMessage(respBody)
		c.logger.Error("api request error", "status", resp.StatusCode, "message", msg)
		return &domain.APIError{Status: resp.StatusCode, Message: msg}

	default:
		c.logger.Error("unexpected api response", "status", resp.StatusCode)
		return domain.ErrUnknown
	}
}

// decode unwraps the response envelope into out
func (c *Client) decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return domain.ErrNoData
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return &domain.DecodingError{Err: err, Raw: body}
	}
	if !env.OK {
		return fmt.Errorf("%w: %s", domain.ErrInvalidResponse, env.Message)
	}
	if len(env.Data) == 0 {
		return domain.ErrNoData
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return &domain.DecodingError{Err: err, Raw: body}
	}
	return nil
}

// parseErrorMessage extracts a message from an optional error envelope
func parseErrorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}

// refreshCredentials exchanges the refresh token for a new token pair.
// Any terminal failure purges credentials and emits a session-expired
// event; the returned error makes the coordinator report false.
func (c *Client) refreshCredentials(ctx context.Context) error {
	creds, err := c.creds.Load()
	if err != nil || creds == nil || creds.RefreshToken == "" {
		return c.expireSession(auth.ReasonNoRefreshToken, fmt.Errorf("no refresh token available"))
	}

	// Refresh tokens are opaque to the client unless they decode as JWTs;
	// only a decodable, provably expired token is rejected locally.
	if expiry, expErr := auth.TokenExpiry(creds.RefreshToken); expErr == nil && time.Now().After(expiry) {
		return c.expireSession(auth.ReasonRefreshTokenExpired, fmt.Errorf("refresh token expired at %s", expiry))
	}

	tokens, err := c.postToken(ctx, "/auth/refresh", refreshRequest{
		RefreshToken: creds.RefreshToken,
		DeviceID:     c.deviceID,
	})
	if err != nil {
		if apiErr, ok := err.(*domain.APIError); ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return c.expireSession(auth.ReasonRefreshTokenInvalid, err)
		}
		if _, ok := err.(*domain.DecodingError); ok {
			return c.expireSession(auth.ReasonInvalidResponse, err)
		}
		return c.expireSession(auth.ReasonRefreshError, err)
	}

	if tokens.AccessToken == "" {
		return c.expireSession(auth.ReasonInvalidResponse, fmt.Errorf("refresh response missing access token"))
	}

	rotated := tokens.RefreshToken
	if rotated == "" {
		// Servers should rotate refresh tokens; keep the old one but flag it
		c.logger.Warn("refresh response did not rotate refresh token")
		rotated = creds.RefreshToken
	}

	if err := c.creds.Save(&auth.Credentials{AccessToken: tokens.AccessToken, RefreshToken: rotated}); err != nil {
		return fmt.Errorf("failed to persist refreshed credentials: %w", err)
	}

	c.logger.Info("credentials refreshed")
	return nil
}

// expireSession purges credentials and notifies listeners
func (c *Client) expireSession(reason auth.SessionExpiredReason, err error) error {
	c.logger.Warn("session expired", "reason", string(reason), "error", err)
	if clearErr := c.creds.Clear(); clearErr != nil {
		c.logger.Error("failed to purge credentials", "error", clearErr)
	}
	c.events.Emit(reason)
	return err
}

// postToken performs a bare token-endpoint POST, outside the bearer/retry
// machinery (these endpoints authenticate by body, not header).
func (c *Client) postToken(ctx context.Context, path string, body any) (*tokenResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.APIError{Status: resp.StatusCode, Message: parseErrorMessage(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, &domain.DecodingError{Err: err, Raw: respBody}
	}
	var tokens tokenResponse
	if err := json.Unmarshal(env.Data, &tokens); err != nil {
		return nil, &domain.DecodingError{Err: err, Raw: respBody}
	}
	return &tokens, nil
}

// Login authenticates with email and password and stores the token pair
func (c *Client) Login(ctx context.Context, email, password string) error {
	tokens, err := c.postToken(ctx, "/auth/login", loginRequest{
		Email:    email,
		Password: password,
		DeviceID: c.deviceID,
	})
	if err != nil {
		if apiErr, ok := err.(*domain.APIError); ok && apiErr.Status == http.StatusUnauthorized {
			return domain.ErrUnauthorized
		}
		return err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return domain.ErrInvalidResponse
	}
	return c.creds.Save(&auth.Credentials{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

// === domain.SyncAPI ===

// UploadProgress sends all pending deltas as one batch
func (c *Client) UploadProgress(ctx context.Context, records []*domain.ProgressRecord) (int, int, error) {
	deltas := make([]ProgressDelta, 0, len(records))
	for _, r := range records {
		deltas = append(deltas, mapDelta(r))
	}

	var out SyncUploadResponse
	if err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/sync",
		body:   syncUploadRequest{History: deltas},
	}, &out, 0); err != nil {
		return 0, 0, err
	}

	c.logger.Info("uploaded progress", "sent", len(deltas), "synced", out.Synced, "failed", out.Failed)
	return out.Synced, out.Failed, nil
}

// FetchHistory downloads the remote record set. Entries without a usable
// chapter identifier or with unparsable fields are excluded up front.
func (c *Client) FetchHistory(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var entries []HistoryEntry
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/history",
		query:  query,
	}, &entries, 0); err != nil {
		return nil, err
	}

	records := make([]*domain.ProgressRecord, 0, len(entries))
	for _, e := range entries {
		if e.CurrentChapterID == "" {
			c.logger.Debug("skipping history entry without chapter id", "novelId", e.NovelID)
			continue
		}
		record, err := mapHistoryEntry(e)
		if err != nil {
			c.logger.Warn("skipping malformed history entry", "novelId", e.NovelID, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteProgress removes the remote record for a novel
func (c *Client) DeleteProgress(ctx context.Context, novelID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/history/" + url.PathEscape(novelID),
	}, nil, 0)
}
