// Package xerrors defines the typed error kinds that carry control-flow
// signals across the stream pipeline (rate limits, missing media, stuck
// encoders). Callers pattern-match with errors.As instead of unwinding.
package xerrors

import (
	"errors"
	"fmt"
)

// NotFoundError marks an empty or non-media message, or a revoked file
// reference. The caller removes the offending ID from the playlist.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return "not found"
	}
	return "not found: " + e.Reason
}

func NewNotFound(reason string) error {
	return &NotFoundError{Reason: reason}
}

// RateLimitedError carries the wait duration signalled by an upstream
// "slow down" response.
type RateLimitedError struct {
	WaitSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: wait %ds", e.WaitSeconds)
}

func NewRateLimited(waitSeconds int) error {
	return &RateLimitedError{WaitSeconds: waitSeconds}
}

// CredentialExpiredError marks a worker whose credentials were rejected on
// start. The worker is skipped permanently, never retried.
type CredentialExpiredError struct {
	Worker int
}

func (e *CredentialExpiredError) Error() string {
	return fmt.Sprintf("credential expired for worker %d", e.Worker)
}

func NewCredentialExpired(worker int) error {
	return &CredentialExpiredError{Worker: worker}
}

// StorageUnavailableError marks a store backend I/O failure. Callers log
// and continue; the next mutation retries.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

func NewStorageUnavailable(cause error) error {
	return &StorageUnavailableError{Cause: cause}
}

// PipeClosedError marks an encoder stdin/stdout closed mid-write. The
// current video is terminated cleanly; the supervisor moves on.
type PipeClosedError struct {
	Stage string
}

func (e *PipeClosedError) Error() string {
	return fmt.Sprintf("pipe closed: %s", e.Stage)
}

func NewPipeClosed(stage string) error {
	return &PipeClosedError{Stage: stage}
}

// StreamStuckError marks a watchdog timeout. The supervisor restarts with
// backoff.
type StreamStuckError struct {
	StreamName string
}

func (e *StreamStuckError) Error() string {
	return fmt.Sprintf("stream stuck: %s", e.StreamName)
}

func NewStreamStuck(streamName string) error {
	return &StreamStuckError{StreamName: streamName}
}

// ErrCancelled marks shutdown or an explicit supervisor cancel. Callers
// swallow it and return cleanly.
var ErrCancelled = errors.New("cancelled")

// AsRateLimited reports whether err carries a RateLimitedError, unwrapping
// as needed.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
