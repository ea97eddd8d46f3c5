// Package rest is the HTTP client for the BizDesk server API. The socket
// carries live events; everything request/response shaped goes through here.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bizdesk/deskchat/internal/authz"
	"github.com/bizdesk/deskchat/internal/chat"
	"go.uber.org/zap"
)

// Client talks to the BizDesk REST API using token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client for the given server.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CurrentUser fetches the authenticated user with roles and permission grants.
func (c *Client) CurrentUser(ctx context.Context) (*authz.User, error) {
	var dto userDTO
	if err := c.do(ctx, http.MethodGet, "/api/user", nil, &dto); err != nil {
		return nil, err
	}
	return dto.toUser(), nil
}

// SiteBranding fetches the server's site identity.
func (c *Client) SiteBranding(ctx context.Context) (*Branding, error) {
	var b Branding
	if err := c.do(ctx, http.MethodGet, "/api/site-info", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListConversations fetches the user's conversations sorted by recency.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationPage, error) {
	var dtos []conversationDTO
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil, &dtos); err != nil {
		return nil, err
	}
	pages := make([]ConversationPage, 0, len(dtos))
	for i := range dtos {
		pages = append(pages, dtos[i].toConversation())
	}
	return pages, nil
}

// Messages fetches one history page, oldest first. A before of 0 fetches the
// newest page.
func (c *Client) Messages(ctx context.Context, conversationID string, before int64, limit int) (*MessagePage, error) {
	q := url.Values{}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var dto struct {
		Messages []messageDTO `json:"messages"`
		HasMore  bool         `json:"has_more"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, err
	}

	page := &MessagePage{HasMore: dto.HasMore}
	for i := range dto.Messages {
		page.Messages = append(page.Messages, dto.Messages[i].toMessage())
	}
	return page, nil
}

// MarkRead clears the caller's unread counter for a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

// Mute silences notifications for a conversation.
func (c *Client) Mute(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/conversations/"+url.PathEscape(conversationID)+"/mute", nil, nil)
}

// Unmute restores notifications for a conversation.
func (c *Client) Unmute(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/conversations/"+url.PathEscape(conversationID)+"/mute", nil, nil)
}

// DeleteConversation removes a conversation for the caller.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/conversations/"+url.PathEscape(conversationID), nil, nil)
}

// CreateDirectConversation opens (or returns) the direct thread with a user.
func (c *Client) CreateDirectConversation(ctx context.Context, userID string) (*ConversationPage, error) {
	var dto conversationDTO
	err := c.do(ctx, http.MethodPost, "/api/chat/conversations", map[string]string{
		"type":    string(chat.Direct),
		"user_id": userID,
	}, &dto)
	if err != nil {
		return nil, err
	}
	page := dto.toConversation()
	return &page, nil
}
