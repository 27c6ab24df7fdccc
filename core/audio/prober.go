package audio

import "context"

// Prober reports the decoded duration of an audio payload in seconds.
// The decoder value is authoritative; the caller keeps its own estimate
// for when probing fails.
type Prober interface {
	ProbeDuration(ctx context.Context, data []byte, format string) (float64, error)
}
