// Package slack implements the message source over the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"chatmirror/internal/model"
	"chatmirror/internal/source"
)

const defaultBaseURL = "https://slack.com/api"

// Uploaded files are capped at 50 MiB per download.
const maxDownloadBytes = 50 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Slack Web API. It retries rate-limited and
// server-errored calls a bounded number of times; everything else is
// surfaced to the caller as a transport error.
type Client struct {
	client  HTTPClient
	token   string
	baseURL string
	backoff time.Duration
	retries uint64
}

// New creates a Client authenticated with the given bot token.
func New(client HTTPClient, token string) *Client {
	return &Client{
		client:  client,
		token:   token,
		baseURL: defaultBaseURL,
		backoff: 2 * time.Second,
		retries: 3,
	}
}

// SetBackoff overrides the retry backoff interval (useful for testing).
func (c *Client) SetBackoff(d time.Duration) {
	c.backoff = d
}

type wireFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Mimetype   string `json:"mimetype"`
	URLPrivate string `json:"url_private"`
}

type wireMessage struct {
	Ts         string     `json:"ts"`
	ThreadTs   string     `json:"thread_ts"`
	User       string     `json:"user"`
	Text       string     `json:"text"`
	Subtype    string     `json:"subtype"`
	BotID      string     `json:"bot_id"`
	ReplyCount int        `json:"reply_count"`
	Files      []wireFile `json:"files"`
}

type historyResponse struct {
	OK               bool          `json:"ok"`
	Error            string        `json:"error"`
	Messages         []wireMessage `json:"messages"`
	HasMore          bool          `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type userResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

// ListHistory returns one page of channel history newer than oldest.
func (c *Client) ListHistory(ctx context.Context, channelID, oldest, pageCursor string, limit int) (*source.HistoryPage, error) {
	form := url.Values{"channel": {channelID}}
	if oldest != "" {
		form.Set("oldest", oldest)
	}
	if pageCursor != "" {
		form.Set("cursor", pageCursor)
	}
	if limit > 0 {
		form.Set("limit", strconv.Itoa(limit))
	}

	var resp historyResponse
	if err := c.call(ctx, "conversations.history", form, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &source.TransportError{Op: "conversations.history", Reason: resp.Error}
	}

	page := &source.HistoryPage{
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetadata.NextCursor,
	}
	for _, wm := range resp.Messages {
		page.Messages = append(page.Messages, wm.toModel())
	}
	return page, nil
}

// GetThread fetches a thread root and all replies, following pagination
// until the thread is complete.
func (c *Client) GetThread(ctx context.Context, channelID, rootTs string) (*source.Thread, error) {
	var all []model.Message
	pageCursor := ""
	for {
		form := url.Values{
			"channel": {channelID},
			"ts":      {rootTs},
			"limit":   {"200"},
		}
		if pageCursor != "" {
			form.Set("cursor", pageCursor)
		}

		var resp historyResponse
		if err := c.call(ctx, "conversations.replies", form, &resp); err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, &source.TransportError{Op: "conversations.replies", Reason: resp.Error}
		}
		for _, wm := range resp.Messages {
			all = append(all, wm.toModel())
		}
		if !resp.HasMore || resp.ResponseMetadata.NextCursor == "" {
			break
		}
		pageCursor = resp.ResponseMetadata.NextCursor
	}

	thread := &source.Thread{}
	for i := range all {
		if all[i].Ts == rootTs {
			thread.Root = &all[i]
			continue
		}
		thread.Replies = append(thread.Replies, all[i])
	}
	if thread.Root == nil {
		return nil, &source.TransportError{Op: "conversations.replies", Reason: "thread root " + rootTs + " missing from response"}
	}
	return thread, nil
}

// ResolveUser looks up a user by id.
func (c *Client) ResolveUser(ctx context.Context, id string) (*model.UserInfo, error) {
	var resp userResponse
	if err := c.call(ctx, "users.info", url.Values{"user": {id}}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &source.TransportError{Op: "users.info", Reason: resp.Error}
	}
	return &model.UserInfo{
		ID:          resp.User.ID,
		Name:        resp.User.Name,
		RealName:    resp.User.RealName,
		DisplayName: resp.User.Profile.DisplayName,
	}, nil
}

// DownloadAttachment fetches the raw bytes of an uploaded file using the
// authenticated private URL.
func (c *Client) DownloadAttachment(ctx context.Context, fileURL string) ([]byte, error) {
	var data []byte
	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("http get: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := retryableStatus(resp); err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &source.TransportError{Op: "download", Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// call POSTs a form-encoded API method and decodes the JSON envelope.
func (c *Client) call(ctx context.Context, method string, form url.Values, out any) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/"+method, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: http post: %w", method, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := retryableStatus(resp); err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &source.TransportError{Op: method, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return fmt.Errorf("%s: read body: %w", method, err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		return nil
	})
}

func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(c.retries, retry.NewConstant(c.backoff))
	return retry.Do(ctx, b, fn)
}

// retryableStatus marks 429 and 5xx responses as retryable, honoring a
// bounded Retry-After on rate limits.
func retryableStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 && secs <= 60 {
			time.Sleep(time.Duration(secs) * time.Second)
		}
		return retry.RetryableError(&source.TransportError{Op: "api", Reason: "rate limited"})
	case resp.StatusCode >= 500:
		return retry.RetryableError(&source.TransportError{
			Op:     "api",
			Reason: fmt.Sprintf("server error %d", resp.StatusCode),
		})
	}
	return nil
}

func (wm wireMessage) toModel() model.Message {
	m := model.Message{
		Ts:         wm.Ts,
		ThreadTs:   wm.ThreadTs,
		User:       wm.User,
		Text:       wm.Text,
		Subtype:    wm.Subtype,
		BotID:      wm.BotID,
		ReplyCount: wm.ReplyCount,
	}
	for _, f := range wm.Files {
		m.Attachments = append(m.Attachments, model.Attachment{
			ID:       f.ID,
			Name:     f.Name,
			Title:    f.Title,
			Mimetype: f.Mimetype,
			URL:      f.URLPrivate,
		})
	}
	return m
}
