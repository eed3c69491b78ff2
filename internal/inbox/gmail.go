package inbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"
	defaultTokenURL     = "https://oauth2.googleapis.com/token"
)

// GmailConfig configures the Gmail REST client.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string // override for tests
	TokenURL     string // override for tests
	CacheSize    int    // full-message LRU capacity, default 256
}

// GmailClient implements MailSource against the Gmail REST API with a
// refresh-token OAuth flow and an LRU cache of fetched messages.
type GmailClient struct {
	cfg  GmailConfig
	http *resty.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	cache *messageCache
}

// NewGmailClient creates a Gmail-backed mail source.
func NewGmailClient(cfg GmailConfig) *GmailClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGmailBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}

	http := resty.New().
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return &GmailClient{
		cfg:   cfg,
		http:  http,
		cache: newMessageCache(cfg.CacheSize),
	}
}

// Authorize implements MailSource.
func (c *GmailClient) Authorize(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}

// token returns a valid access token, refreshing it when absent or within
// 30 seconds of expiry.
func (c *GmailClient) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > 30*time.Second {
		return c.accessToken, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"refresh_token": c.cfg.RefreshToken,
			"grant_type":    "refresh_token",
		}).
		Post(c.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("token refresh failed: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body(), &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token refresh returned no access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// ListMessages implements MailSource, following pagination until exhausted.
// Ids come back in Gmail's native newest-first order.
func (c *GmailClient) ListMessages(ctx context.Context, query string) ([]string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParam("q", query).
			SetQueryParam("maxResults", "100")
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		resp, err := req.Get(c.cfg.BaseURL + "/messages")
		if err != nil {
			return nil, fmt.Errorf("message list request failed: %w", err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("message list failed: HTTP %d: %s", resp.StatusCode(), resp.String())
		}

		var page struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("failed to parse message list: %w", err)
		}

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

// gmailMessage mirrors the slice of the Gmail message resource we consume.
type gmailMessage struct {
	ID           string `json:"id"`
	InternalDate string `json:"internalDate"` // epoch millis as string
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		MimeType string      `json:"mimeType"`
		Body     gmailBody   `json:"body"`
		Parts    []gmailPart `json:"parts"`
	} `json:"payload"`
}

type gmailPart struct {
	MimeType string      `json:"mimeType"`
	Body     gmailBody   `json:"body"`
	Parts    []gmailPart `json:"parts"`
}

type gmailBody struct {
	Data string `json:"data"`
}

// FullMessage implements MailSource.
func (c *GmailClient) FullMessage(ctx context.Context, id string) (*Message, error) {
	if msg, ok := c.cache.Get(id); ok {
		return msg, nil
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("format", "full").
		Get(c.cfg.BaseURL + "/messages/" + id)
	if err != nil {
		return nil, fmt.Errorf("message fetch request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("message fetch failed: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var wire gmailMessage
	if err := json.Unmarshal(resp.Body(), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	msg := &Message{ID: wire.ID}
	for _, h := range wire.Payload.Headers {
		switch h.Name {
		case "From":
			msg.From = h.Value
		case "Subject":
			msg.Subject = h.Value
		}
	}
	if millis, err := strconv.ParseInt(wire.InternalDate, 10, 64); err == nil {
		msg.InternalDate = time.UnixMilli(millis)
	}

	msg.Body = decodeBody(wire.Payload.Body, wire.Payload.Parts)

	c.cache.Put(id, msg)
	return msg, nil
}

// decodeBody walks the MIME tree for the first text part, preferring
// text/plain over text/html.
func decodeBody(body gmailBody, parts []gmailPart) string {
	if text := decodePart(body.Data); text != "" && len(parts) == 0 {
		return text
	}

	if text := findPart(parts, "text/plain"); text != "" {
		return text
	}
	if text := findPart(parts, "text/html"); text != "" {
		return text
	}
	return decodePart(body.Data)
}

func findPart(parts []gmailPart, mimeType string) string {
	for _, p := range parts {
		if p.MimeType == mimeType {
			if text := decodePart(p.Body.Data); text != "" {
				return text
			}
		}
		if text := findPart(p.Parts, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodePart(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}
