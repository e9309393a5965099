// Package telegram is the operator-side channel: notifications go into a
// supergroup forum topic per customer, operator replies come back through
// the bot webhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBase     = "https://api.telegram.org"
	defaultHTTPTimeout = 10 * time.Second
)

// Client calls the Telegram Bot API.
type Client struct {
	token       string
	groupChatID int64
	apiBase     string
	httpClient  *http.Client
}

func NewClient(token string, groupChatID int64) *Client {
	return &Client{
		token:       token,
		groupChatID: groupChatID,
		apiBase:     defaultAPIBase,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the Bot API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

func (c *Client) Configured() bool {
	return c.token != "" && c.groupChatID != 0
}

// GroupChatID is the supergroup the bot posts operator notifications to.
func (c *Client) GroupChatID() int64 {
	return c.groupChatID
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("telegram: unmarshal %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram: API error %d on %s: %s", parsed.ErrorCode, method, parsed.Description)
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID          int64  `json:"chat_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode"`
}

// SendToTopic posts an HTML-formatted message into a forum topic of the
// operator group. threadID zero posts to the general topic.
func (c *Client) SendToTopic(ctx context.Context, threadID int64, html string) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:          c.groupChatID,
		MessageThreadID: threadID,
		Text:            html,
		ParseMode:       "HTML",
	}, nil)
}

type createForumTopicRequest struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

type forumTopic struct {
	MessageThreadID int64 `json:"message_thread_id"`
}

// CreateForumTopic opens a new forum topic in the operator group and
// returns its thread id.
func (c *Client) CreateForumTopic(ctx context.Context, name string) (int64, error) {
	var topic forumTopic
	if err := c.call(ctx, "createForumTopic", createForumTopicRequest{
		ChatID: c.groupChatID,
		Name:   name,
	}, &topic); err != nil {
		return 0, err
	}
	return topic.MessageThreadID, nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes user-provided text for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
