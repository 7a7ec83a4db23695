package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"presentos/pkg/trace"
)

const (
	defaultTimeout   = 15 * time.Second
	maxTranscriptLen = 1 << 16
	maxAudioBytes    = 10 << 20
)

var (
	ErrEmptyAudio = errors.New("empty audio")
	ErrEmptyText  = errors.New("empty text")
)

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error)
}

// Speaker 文字转语音
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client 外部语音服务的 HTTP 客户端，失败不重试，由调用方决定是否重说
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, ErrEmptyAudio
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := c.post(ctx, "/transcribe", contentType, audio)
	if err != nil {
		return Transcript{}, err
	}
	var out Transcript
	if err := json.Unmarshal(resp, &out); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	if len(out.Text) > maxTranscriptLen {
		out.Text = out.Text[:maxTranscriptLen]
	}
	out.Text = strings.TrimSpace(out.Text)
	c.logger.Debug("audio transcribed",
		zap.Int("audio_bytes", len(audio)),
		zap.Float64("confidence", out.Confidence),
	)
	return out, nil
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", ErrEmptyText
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, "", err
	}
	req, err := c.request(ctx, "/synthesize", "application/json", body)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("speech synthesize: %w", err)
	}
	defer resp.Body.Close()
	audio, err := readBody(resp)
	if err != nil {
		return nil, "", err
	}
	return audio, resp.Header.Get("Content-Type"), nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := c.request(ctx, path, contentType, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech %s: %w", strings.TrimPrefix(path, "/"), err)
	}
	defer resp.Body.Close()
	return readBody(resp)
}

func (c *Client) request(ctx context.Context, path, contentType string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if id := trace.FromContext(ctx); id != "" {
		req.Header.Set(trace.HeaderName(), id)
	}
	return req, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("speech service returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return raw, nil
}
