// Package rewrite sends a transcript through a chat model with the active
// execution mode's system prompt.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"flemme/internal/config"
	"flemme/internal/jsonpath"
	"flemme/internal/logging"
)

// Timeouts for one rewrite call.
const (
	HostedTimeout = 30 * time.Second
	LocalTimeout  = 5 * time.Minute
)

const geminiHost = "generativelanguage.googleapis.com"

// ErrMissingCredential is returned when a hosted model has no API key.
var ErrMissingCredential = errors.New("rewrite: missing API key")

// Kind classifies a failed call.
type Kind int

const (
	Timeout Kind = iota + 1
	ConnectFailed
	HTTPStatus
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case ConnectFailed:
		return "connect_failed"
	case HTTPStatus:
		return "http_status"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is a failed rewrite call. StatusCode is set for HTTPStatus.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == HTTPStatus {
		return fmt.Sprintf("rewrite: %s %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("rewrite: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls rewrite models. Timeout, when non-zero, replaces the
// per-model default.
type Client struct {
	HTTPClient *http.Client
	Timeout    time.Duration

	log zerolog.Logger
}

// New returns a Client using httpClient, or http.DefaultClient when nil.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTPClient: httpClient, log: logging.WithComponent("rewrite")}
}

// IsLocal reports whether model runs on this machine.
func IsLocal(model config.LLMModel) bool {
	if model.Local {
		return true
	}
	u, err := url.Parse(model.APIURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// TimeoutFor returns the call budget for model.
func TimeoutFor(model config.LLMModel) time.Duration {
	if IsLocal(model) {
		return LocalTimeout
	}
	return HostedTimeout
}

// Call rewrites text with model. Gemini endpoints are detected by host; every
// other URL is treated as an OpenAI-compatible chat completions endpoint.
func (c *Client) Call(ctx context.Context, model config.LLMModel, apiKey, systemPrompt, text string) (string, error) {
	if apiKey == "" && !IsLocal(model) {
		return "", ErrMissingCredential
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = TimeoutFor(model)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		out string
		err error
	)
	if strings.Contains(model.APIURL, geminiHost) {
		out, err = c.callGemini(ctx, model, apiKey, systemPrompt, text)
	} else {
		out, err = c.callOpenAI(ctx, model, apiKey, systemPrompt, text)
	}
	if err != nil {
		var rerr *Error
		if !errors.As(err, &rerr) {
			rerr = classify(err)
		}
		c.log.Debug().Err(rerr).Str("model", model.ID).Dur("elapsed", time.Since(start)).Msg("rewrite failed")
		return "", rerr
	}
	c.log.Debug().Str("model", model.ID).Int("chars", len(out)).Dur("elapsed", time.Since(start)).Msg("rewrite done")
	return out, nil
}

func (c *Client) callOpenAI(ctx context.Context, model config.LLMModel, apiKey, systemPrompt, text string) (string, error) {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(model.APIURL, "/"), "/chat/completions")
	cfg.HTTPClient = c.HTTPClient
	client := openai.NewClientWithConfig(cfg)

	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model.ModelName,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: MalformedResponse, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

func (c *Client) callGemini(ctx context.Context, model config.LLMModel, apiKey, systemPrompt, text string) (string, error) {
	prompt := text
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + text
	}
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	sep := "?"
	if strings.Contains(model.APIURL, "?") {
		sep = "&"
	}
	endpoint := model.APIURL + sep + "key=" + url.QueryEscape(apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: HTTPStatus, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(respBody))}
	}
	out, err := jsonpath.Extract(respBody, "candidates[0].content.parts[0].text")
	if err != nil {
		return "", &Error{Kind: MalformedResponse, Err: err}
	}
	return strings.TrimSpace(out), nil
}

func classify(err error) *Error {
	var (
		netErr net.Error
		apiErr *openai.APIError
		reqErr *openai.RequestError
		opErr  *net.OpError
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: Timeout, Err: err}
	case errors.As(err, &apiErr):
		return &Error{Kind: HTTPStatus, StatusCode: apiErr.HTTPStatusCode, Err: err}
	case errors.As(err, &reqErr):
		return &Error{Kind: HTTPStatus, StatusCode: reqErr.HTTPStatusCode, Err: err}
	case errors.As(err, &opErr), errors.As(err, &urlErr):
		return &Error{Kind: ConnectFailed, Err: err}
	default:
		return &Error{Kind: MalformedResponse, Err: err}
	}
}
