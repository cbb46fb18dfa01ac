// Package youtube talks to the video provider: Data API v3 search, caption
// transcripts scraped from the watch page, and full-video download via yt-dlp.
package youtube

import (
	"errors"
	"fmt"
)

var (
	// ErrTranscriptsDisabled means the video exposes no usable caption track.
	ErrTranscriptsDisabled = errors.New("transcripts disabled")
	// ErrProviderQuota means the provider itself refused the request for quota reasons.
	ErrProviderQuota = errors.New("provider quota exceeded")
	// ErrInvalidVideoID guards the downloader against arguments that are not video IDs.
	ErrInvalidVideoID = errors.New("invalid video id")
	// ErrAttemptDenied means the context's admission func refused a retry.
	ErrAttemptDenied = errors.New("retry attempt denied")
)

// ProviderError is a non-success response from the provider.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("youtube %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure was transient on the provider side.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
