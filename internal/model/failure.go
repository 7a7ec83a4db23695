package model

import (
	"errors"
	"fmt"
)

// FailureKind 能力模块的类型化失败
type FailureKind string

const (
	FailureUnauthorized FailureKind = "Unauthorized"
	FailureRateLimited  FailureKind = "RateLimited"
	FailureNotFound     FailureKind = "NotFound"
	FailureInvalidInput FailureKind = "InvalidInput"
	FailureTimeout      FailureKind = "Timeout"
	FailureUnavailable  FailureKind = "Unavailable"
	// FailureSkipped 依赖的前置步骤失败，未执行
	FailureSkipped FailureKind = "Skipped"
)

// Transient failures may succeed on retry.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureTimeout, FailureRateLimited, FailureUnavailable:
		return true
	}
	return false
}

// Failure implements error.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a *Failure from err, or wraps it as Unavailable.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureUnavailable, Message: err.Error()}
}
