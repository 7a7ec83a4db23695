package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// NewRequestID 生成一个新的请求 ID
func NewRequestID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 request id
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext 将 request id 添加到 context 中
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx carrying a request id, generating one when absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithContext(ctx, id), id
}

// HeaderName 返回 request ID 的 HTTP header 名称
func HeaderName() string {
	return "X-Request-ID"
}
