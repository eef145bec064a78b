// Package llm provides LLM inference and embedding services using langchaingo.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for inference operations.
var (
	// ErrInference marks transient inference failures (transport, timeout).
	// Records failing with ErrInference stay eligible for a retry pass.
	ErrInference = errors.New("inference failed")

	// ErrFatalAPI marks unrecoverable API errors (auth, billing, quota).
	// Callers should stop issuing calls rather than retry.
	ErrFatalAPI = errors.New("fatal API error")
)

// fatalPatterns are substrings that indicate an unrecoverable API error.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like an auth/billing/quota
// failure that retrying cannot fix.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapInferenceError classifies an error from the underlying model client:
// fatal API errors wrap ErrFatalAPI, everything else (timeouts, transport,
// cancellation) wraps ErrInference so the pipeline treats it as transient.
func wrapInferenceError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return fmt.Errorf("%w: %v", ErrInference, err)
}
