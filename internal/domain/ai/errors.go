package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrUnauthorized indicates bad or missing provider credentials; never retried.
var ErrUnauthorized = errors.New("ai provider rejected credentials")

// ErrEmptyResponse indicates the provider answered with no content.
var ErrEmptyResponse = errors.New("ai returned empty response")

// ErrTransport indicates a timeout, connection failure or rate-limit signal;
// retryable up to the client's attempt bound.
var ErrTransport = errors.New("ai transport error")

// ErrExhausted wraps the last underlying cause after all attempts failed.
var ErrExhausted = errors.New("ai attempts exhausted")
