// Package telegram is a focused Telegram Bot API client covering the
// three calls this bot needs: long-poll updates, text messages with
// reply keyboards, and document uploads.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// User is the sender of an incoming message.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Chat identifies where replies go.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is the minimal incoming message shape.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Update is one item from getUpdates or a webhook delivery.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// DisplayName returns the best available human-readable name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

type replyKeyboardMarkup struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type sendMessageRequest struct {
	ChatID      int64                `json:"chat_id"`
	Text        string               `json:"text"`
	ReplyMarkup *replyKeyboardMarkup `json:"reply_markup,omitempty"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// tokenPayload is the expected JSON shape stored in SSM for the bot token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("telegram: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client backed by the given paramstore.Getter for
// bot token retrieval. The token is fetched from SSM on the first API
// call and reused for the lifetime of the process. The default HTTP
// timeout leaves headroom for long polling; shorten it via
// WithHTTPClient if GetUpdates is never used.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("telegram: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("telegram: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 65 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken fetches the bot token from SSM on the first call and
// returns the cached result on every subsequent call.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = fetchTokenFromParamStore(ctx, c.getter, c.paramPrefix+"/bot-token")
	})
	return c.token, c.tokenErr
}

func methodURL(baseURL, token, method string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return base + "/bot" + token + "/" + method
}

// GetUpdates long-polls the Bot API for message updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	result, err := c.callMethod(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeoutSec,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage delivers a text message, with a one-time reply keyboard
// when keyboard rows are given.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]string) error {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if len(keyboard) > 0 {
		rows := make([][]keyboardButton, 0, len(keyboard))
		for _, row := range keyboard {
			buttons := make([]keyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, keyboardButton{Text: label})
			}
			rows = append(rows, buttons)
		}
		req.ReplyMarkup = &replyKeyboardMarkup{
			Keyboard:        rows,
			OneTimeKeyboard: true,
			ResizeKeyboard:  true,
		}
	}
	if _, err := c.callMethod(ctx, "sendMessage", req); err != nil {
		return err
	}
	return nil
}

// SendDocument uploads a file as a document attachment.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, data []byte) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram: write chat_id field: %w", err)
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("telegram: create document part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("telegram: write document part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("telegram: close multipart body: %w", err)
	}

	url := methodURL(c.baseURL, token, "sendDocument")
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if reqErr != nil {
		return fmt.Errorf("telegram: create sendDocument request: %w", reqErr)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if _, err := c.doAPIRequest(req, url); err != nil {
		return fmt.Errorf("telegram: sendDocument failed: %w", err)
	}
	return nil
}

// callMethod posts a JSON payload to a Bot API method and returns the
// envelope's result.
func (c *Client) callMethod(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
	}

	url := methodURL(c.baseURL, token, method)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("telegram: create %s request: %w", method, reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	result, err := c.doAPIRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s failed: %w", method, err)
	}
	return result, nil
}

// doAPIRequest executes the request, enforces the 2xx + ok:true
// contract, and returns the raw result payload.
func (c *Client) doAPIRequest(req *http.Request, url string) (json.RawMessage, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        redactToken(url),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("api error: %s", envelope.Description)
	}
	return envelope.Result, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

// redactToken strips the bot token from a method URL before it can land
// in an error message or log line.
func redactToken(url string) string {
	start := strings.Index(url, "/bot")
	if start < 0 {
		return url
	}
	rest := url[start+len("/bot"):]
	end := strings.Index(rest, "/")
	if end < 0 {
		return url[:start] + "/bot<redacted>"
	}
	return url[:start] + "/bot<redacted>" + rest[end:]
}

func fetchTokenFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("telegram: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("telegram: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("telegram: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("telegram: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("telegram: bot token is empty")
	}
	return tp.Token, nil
}
