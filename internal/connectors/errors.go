package connectors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsafeURL       = errors.New("unsafe upstream url")
	ErrRedirectBlocked = errors.New("upstream redirect blocked")
	ErrTimeout         = errors.New("upstream timeout")
)

// AuthConfigError - режим авторизации провайдера не может быть применен.
type AuthConfigError struct {
	Mode AuthMode
	Msg  string
}

func (e *AuthConfigError) Error() string { return e.Msg }

// UpstreamError - апстрим ответил не-2xx. Body обрезан для диагностики.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Upstream error %d: %s", e.Status, e.Body)
}

type RedirectBlockedError struct {
	Status   int
	Location string
}

func (e *RedirectBlockedError) Error() string {
	return fmt.Sprintf("Upstream redirect blocked (%d). Location=%s", e.Status, e.Location)
}

func (e *RedirectBlockedError) Is(target error) bool { return target == ErrRedirectBlocked }

// ThrottleError - апстрим или локальный лимитер попросил подождать.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
