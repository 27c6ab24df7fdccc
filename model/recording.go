package model

import (
	"regexp"
	"strings"
	"time"
)

// Recording represents one captured voice clip in the library.
type Recording struct {
	ID        string    `json:"id"`       // Opaque identifier assigned at capture, never reused
	Name      string    `json:"name"`     // Display name, user editable
	Duration  float64   `json:"duration"` // Duration in seconds; 0 means unknown
	Format    string    `json:"format"`   // Payload container: wav, mp3, ...
	CreatedAt time.Time `json:"createdAt"`
	ClipURL   string    `json:"clipUrl,omitempty"` // Transient playable handle, minted per process, never persisted
	Data      []byte    `json:"-"`                 // Encoded audio payload, not exposed in API directly
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// ExportName returns a filesystem safe file name for the payload,
// built from the display name and the container extension.
func (r *Recording) ExportName() string {
	base := strings.TrimSpace(r.Name)
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	maxLength := 100
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	if base == "" {
		base = r.ID
	}

	ext := r.Format
	if ext == "" {
		ext = "wav"
	}
	return base + "." + ext
}
