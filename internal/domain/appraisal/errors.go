package appraisal

import "errors"

// ErrNotFound indicates the requested appraisal id does not exist in the store.
var ErrNotFound = errors.New("appraisal not found")

// ErrInvalidState indicates an illegal lifecycle transition, e.g. retrying a
// completed or unpaid appraisal.
var ErrInvalidState = errors.New("invalid appraisal state for this operation")

// ErrInvalidInput indicates the submitted image data is missing or malformed.
var ErrInvalidInput = errors.New("invalid image input")

// ErrStorage wraps store read/write failures so callers can map them without
// inspecting backend-specific errors.
var ErrStorage = errors.New("appraisal store error")
