package capability

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

	"presentos/internal/model"
	"presentos/pkg/circuitbreaker"
	"presentos/pkg/trace"
	"presentos/pkg/util"
)

const maxResponseBytes = 1 << 20

// HTTPCapability posts the request as JSON to <base>/invoke.
type HTTPCapability struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

type failureBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewHTTPCapability(name, baseURL string, client *http.Client, breakerCfg circuitbreaker.Config, logger *zap.Logger) *HTTPCapability {
	if client == nil {
		client = &http.Client{}
	}
	// 只有瞬时故障计入熔断
	breakerCfg.IsFailure = func(err error) bool {
		f := model.AsFailure(err)
		return f.Kind == model.FailureUnavailable || f.Kind == model.FailureTimeout
	}
	return &HTTPCapability{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(name, breakerCfg),
		logger:  logger,
	}
}

func (c *HTTPCapability) Name() string { return c.name }

func (c *HTTPCapability) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

func (c *HTTPCapability) Invoke(ctx context.Context, req Request) (Response, error) {
	var resp Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.do(ctx, req)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return Response{}, model.NewFailure(model.FailureUnavailable, "%s: circuit open", c.name)
	}
	return resp, err
}

func (c *HTTPCapability) do(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, model.NewFailure(model.FailureInvalidInput, "encode request: %v", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return Response{}, model.NewFailure(model.FailureInvalidInput, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := trace.FromContext(ctx); id != "" {
		httpReq.Header.Set(trace.HeaderName(), id)
	}

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, transportFailure(ctx, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, transportFailure(ctx, err)
	}

	if httpResp.StatusCode >= 300 {
		f := StatusFailure(httpResp.StatusCode, raw)
		c.logger.Debug("capability returned failure",
			zap.String("capability", c.name),
			zap.Int("status", httpResp.StatusCode),
			zap.String("kind", string(f.Kind)),
			zap.Duration("took", time.Since(start)),
		)
		return Response{}, f
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		// 模块无法给出明确结果时按 Unavailable 处理
		return Response{}, model.NewFailure(model.FailureUnavailable, "decode response: %v", err)
	}
	return out, nil
}

// StatusFailure maps an HTTP status to a typed failure. A kind in the body wins when valid.
func StatusFailure(status int, body []byte) *model.Failure {
	var fb failureBody
	_ = json.Unmarshal(body, &fb)
	msg := fb.Message
	if msg == "" {
		msg = fb.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if k := model.FailureKind(fb.Kind); k != "" && k != model.FailureSkipped && validKind(k) {
		return &model.Failure{Kind: k, Message: msg}
	}

	var kind model.FailureKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = model.FailureUnauthorized
	case status == http.StatusTooManyRequests:
		kind = model.FailureRateLimited
	case status == http.StatusNotFound:
		kind = model.FailureNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = model.FailureInvalidInput
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		kind = model.FailureTimeout
	case status >= 500:
		kind = model.FailureUnavailable
	default:
		kind = model.FailureInvalidInput
	}
	return &model.Failure{Kind: kind, Message: msg}
}

func validKind(k model.FailureKind) bool {
	switch k {
	case model.FailureUnauthorized, model.FailureRateLimited, model.FailureNotFound,
		model.FailureInvalidInput, model.FailureTimeout, model.FailureUnavailable:
		return true
	}
	return false
}

func transportFailure(ctx context.Context, err error) *model.Failure {
	if ctx.Err() != nil {
		return model.NewFailure(model.FailureTimeout, "%v", ctx.Err())
	}
	_, errType := util.IsRetryableError(err)
	switch errType {
	case "timeout", "network_timeout":
		return model.NewFailure(model.FailureTimeout, "%v", err)
	}
	return model.NewFailure(model.FailureUnavailable, "%s: %v", errType, err)
}

// Endpoints builds HTTP capabilities from name -> base URL.
func Endpoints(endpoints map[string]string, client *http.Client, breakerCfg circuitbreaker.Config, logger *zap.Logger) ([]Capability, error) {
	out := make([]Capability, 0, len(endpoints))
	for name, base := range endpoints {
		if base == "" {
			return nil, fmt.Errorf("capability %s: empty endpoint", name)
		}
		out = append(out, NewHTTPCapability(name, base, client, breakerCfg, logger))
	}
	return out, nil
}
