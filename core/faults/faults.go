// Package faults defines the error taxonomy shared by the recognition,
// synthesis and completion components. Callers classify failures by sentinel
// so propagation policy (retry, fallback, immediate surface) stays uniform
// across vendors.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ProviderUnavailable indicates a recognition or synthesis vendor that is
	// unreachable or malfunctioning.
	ProviderUnavailable = errors.New("provider unavailable")

	// ParameterInvalid indicates a caller-supplied value outside the vendor
	// contract. Never retried.
	ParameterInvalid = errors.New("parameter invalid")

	// TokenAcquisitionFailed indicates the vendor credential exchange failed.
	TokenAcquisitionFailed = errors.New("token acquisition failed")

	// NetworkTimeout indicates a request that did not complete in time.
	// Considered transient.
	NetworkTimeout = errors.New("network timeout")

	// RateLimited indicates the caller exceeded its request budget. Never
	// retried.
	RateLimited = errors.New("rate limited")

	// AudioPlaybackError indicates the audio output sink failed after
	// synthesis succeeded.
	AudioPlaybackError = errors.New("audio playback error")

	// UpstreamAuthError indicates the upstream model rejected the request's
	// credentials. Never retried.
	UpstreamAuthError = errors.New("upstream auth error")
)

// Classified wraps an underlying error with its taxonomy sentinel so the
// original cause stays inspectable while errors.Is matches the class.
type Classified struct {
	Class      error
	Underlying error
	Message    string
}

func (e *Classified) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Underlying != nil {
		return e.Underlying.Error()
	}
	return e.Class.Error()
}

func (e *Classified) Unwrap() []error {
	if e.Underlying != nil {
		return []error{e.Class, e.Underlying}
	}
	return []error{e.Class}
}

// New builds a classified error. The message may be empty, in which case the
// underlying error's text is used.
func New(class error, underlying error, message string) error {
	return &Classified{Class: class, Underlying: underlying, Message: message}
}

// Newf builds a classified error with a formatted message.
func Newf(class error, underlying error, format string, args ...any) error {
	return &Classified{Class: class, Underlying: underlying, Message: fmt.Sprintf(format, args...)}
}

// Transient reports whether an error may succeed if retried. Only timeouts
// and unreachable providers qualify; parameter, auth and rate-limit failures
// are terminal by policy.
func Transient(err error) bool {
	return errors.Is(err, NetworkTimeout) || errors.Is(err, ProviderUnavailable)
}
