// Package asr uploads recordings to a remote speech-to-text HTTP API.
package asr

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"flemme/internal/config"
	"flemme/internal/jsonpath"
	"flemme/internal/logging"
	"flemme/internal/transcribe"
)

// ErrNoEndpoint is returned when the API endpoint is not configured.
var ErrNoEndpoint = errors.New("asr: API endpoint is empty")

// RetryExhaustedError reports that every upload attempt failed.
type RetryExhaustedError struct {
	Attempts     int
	MaxRetry     int
	LastResponse []byte
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("asr: exceeded max retries (%d) after %d attempts: %s", e.MaxRetry, e.Attempts, formatResponse(e.LastResponse))
}

// Client performs ASR uploads.
type Client struct {
	cfg            config.Config
	httpClient     *http.Client
	extraConfigMap map[string]interface{}
	log            zerolog.Logger
}

// New creates a new ASR client and parses ExtraConfig.
func New(cfg config.Config, httpClient *http.Client) (*Client, error) {
	c := &Client{cfg: cfg, httpClient: httpClient, log: logging.WithComponent("asr")}
	if cfg.ExtraConfig != "" {
		c.extraConfigMap = make(map[string]interface{})
		if err := json.Unmarshal([]byte(cfg.ExtraConfig), &c.extraConfigMap); err != nil {
			return nil, fmt.Errorf("invalid extra-config JSON: %w", err)
		}
	}
	return c, nil
}

// Transcribe uploads the audio file and returns extracted text and raw JSON.
// Language and prompt come from p; an empty or "auto" language is omitted.
func (c *Client) Transcribe(ctx context.Context, filePath string, p transcribe.Params) (string, []byte, error) {
	if c.cfg.APIEndpoint == "" {
		return "", nil, ErrNoEndpoint
	}

	try := 0
	delay := c.cfg.RetryBaseDelay
	var lastResp []byte

	for {
		try++
		ok, res := c.doUpload(ctx, filePath, p)
		lastResp = res
		if ok {
			text := jsonpath.ExtractText(res, c.cfg.TEXTPath)
			return text, res, nil
		}

		c.log.Debug().Int("attempt", try).Str("response", formatResponse(res)).Msg("upload attempt failed")
		if try >= c.cfg.MaxRetry {
			return "", lastResp, &RetryExhaustedError{Attempts: try, MaxRetry: c.cfg.MaxRetry, LastResponse: lastResp}
		}
		select {
		case <-ctx.Done():
			return "", lastResp, ctx.Err()
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
		delay *= 2
	}
}

func (c *Client) fields(p transcribe.Params) map[string]interface{} {
	base := make(map[string]interface{})
	if c.cfg.ModelPath != "" {
		base["model"] = c.cfg.ModelPath
	}
	if lang := strings.TrimSpace(p.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		base["language"] = lang
	}
	if p.Prompt != "" {
		base["prompt"] = p.Prompt
	}
	for k, v := range c.extraConfigMap {
		base[k] = v
	}
	return base
}

func (c *Client) doUpload(ctx context.Context, filePath string, p transcribe.Params) (bool, []byte) {
	c.log.Debug().Str("file", filePath).Str("endpoint", c.cfg.APIEndpoint).Msg("uploading")
	f, err := os.Open(filePath)
	if err != nil {
		return false, []byte(fmt.Sprintf("open file error: %v", err))
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return false, []byte(fmt.Sprintf("create form file error: %v", err))
	}
	if _, err := io.Copy(part, f); err != nil {
		return false, []byte(fmt.Sprintf("copy file error: %v", err))
	}

	for k, v := range c.fields(p) {
		switch val := v.(type) {
		case string:
			_ = writer.WriteField(k, val)
		case bool, float64, int:
			_ = writer.WriteField(k, fmt.Sprintf("%v", val))
		default:
			if b, err := json.Marshal(val); err == nil {
				_ = writer.WriteField(k, string(b))
			} else {
				_ = writer.WriteField(k, fmt.Sprintf("%v", val))
			}
		}
	}
	_ = writer.Close()

	client := c.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.RequestTimeout)*time.Second)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIEndpoint, body)
	if err != nil {
		return false, []byte(fmt.Sprintf("new request error: %v", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("User-Agent", "flemme/1.0")

	start := time.Now()
	resp, err := client.Do(req)
	c.log.Debug().Dur("elapsed", time.Since(start)).Msg("request finished")

	if err != nil {
		return false, []byte(fmt.Sprintf("request error: %v", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return false, respBody
	}
	return true, respBody
}

func formatResponse(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		s := string(b)
		if len(s) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", s[:maxText], len(b))
		}
		return s
	}

	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
