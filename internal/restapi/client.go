// Package restapi is a client of the messaging REST endpoints used to populate
// conversations before the live feed takes over.
package restapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snapcircle/dmsocket/internal/build"
	"github.com/snapcircle/dmsocket/internal/chat"
	"github.com/snapcircle/dmsocket/internal/credential"
	"github.com/snapcircle/dmsocket/internal/metrics"

	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
)

// DefaultTimeout of a single request.
const DefaultTimeout = 10 * time.Second

// DefaultPageSize of history requests.
const DefaultPageSize = 50

const maxBodySize = 8 << 20

// ErrUnexpectedBody is returned for responses of unknown shape.
var ErrUnexpectedBody = errors.New("unexpected response body")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected HTTP status code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected HTTP status code %d", e.Code)
}

// Conversation is an entry of the conversation list.
type Conversation struct {
	UserID      int64         `json:"userId"`
	Username    string        `json:"username"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
	LastMessage *chat.Message `json:"lastMessage,omitempty"`
	UnreadCount int           `json:"unreadCount"`
}

// HistoryPage is a page of messages exchanged with a peer.
type HistoryPage struct {
	Messages []chat.Message
	Page     int
	Limit    int
	HasMore  bool
}

// Client calls the REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Metrics    *metrics.Registry
}

// New creates Client.
func New(baseURL string, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      credential.Strip(token),
		HTTPClient: httpClient,
	}
}

// ListConversations returns conversations of the authenticated user.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	body, err := c.get(ctx, "conversations", "/messages/conversations", nil)
	if err != nil {
		return nil, err
	}
	payload := unwrap(body)
	if !payload.IsArray() {
		return nil, fmt.Errorf("conversations: %w", ErrUnexpectedBody)
	}
	var res []Conversation
	if err := json.Unmarshal([]byte(payload.Raw), &res); err != nil {
		return nil, fmt.Errorf("error decoding conversations: %w", err)
	}
	return res, nil
}

// History returns a page of messages exchanged with peerID. Pages start from 1.
func (c *Client) History(ctx context.Context, peerID int64, page int, limit int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	body, err := c.get(ctx, "history", "/messages/"+strconv.FormatInt(peerID, 10), query)
	if err != nil {
		return HistoryPage{}, err
	}
	payload := unwrap(body)
	if payload.IsObject() && payload.Get("messages").Exists() {
		payload = payload.Get("messages")
	}
	if !payload.IsArray() {
		return HistoryPage{}, fmt.Errorf("history: %w", ErrUnexpectedBody)
	}
	var messages []chat.Message
	if err := json.Unmarshal([]byte(payload.Raw), &messages); err != nil {
		return HistoryPage{}, fmt.Errorf("error decoding history: %w", err)
	}
	return HistoryPage{
		Messages: messages,
		Page:     page,
		Limit:    limit,
		HasMore:  len(messages) >= limit,
	}, nil
}

// unwrap returns the data field of {success, data} envelopes or the whole body.
func unwrap(body []byte) gjson.Result {
	res := gjson.ParseBytes(body)
	if res.IsObject() {
		if data := res.Get("data"); data.Exists() {
			return data
		}
	}
	return res
}

func (c *Client) get(ctx context.Context, endpoint string, path string, query url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error constructing HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", build.UserAgent())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Metrics.IncRESTRequest(endpoint, 0)
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.Metrics.IncRESTRequest(endpoint, resp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("error reading HTTP body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		if gjson.ValidBytes(body) {
			res := gjson.ParseBytes(body)
			statusErr.Message = res.Get("error").String()
			if statusErr.Message == "" {
				statusErr.Message = res.Get("message").String()
			}
		}
		return nil, statusErr
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: %w", endpoint, ErrUnexpectedBody)
	}
	return body, nil
}
