package ddc

import "dimctl/internal/errors"

const (
	// Transient failures are retried with backoff.
	ErrTransient = errors.ErrorCode("ddc_transient_failure")
	// ErrExhausted marks a write whose retries ran out; the monitor is
	// treated as degraded until the next rescan.
	ErrExhausted = errors.ErrorCode("ddc_retries_exhausted")

	ErrDetectFailed   = errors.ErrorCode("ddc_detect_failed")
	ErrUnknownDisplay = errors.ErrorCode("ddc_unknown_display")
	ErrParseFailed    = errors.ErrorCode("ddc_parse_failed")
)

// IsPermanent reports whether err marks a display as degraded.
func IsPermanent(err error) bool {
	return errors.CodeOf(err) == ErrExhausted
}
