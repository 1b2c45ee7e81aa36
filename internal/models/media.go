package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptionStatus represents the media transcription lifecycle.
// completed and failed are terminal: only an explicit retrigger
// (ResetForRetry) moves an item out of them.
const (
	TranscriptionStatusPending    = "pending"
	TranscriptionStatusProcessing = "processing"
	TranscriptionStatusCompleted  = "completed"
	TranscriptionStatusFailed     = "failed"
)

// MediaItem is one downloadable unit of content (short video or audio clip).
// Transcript segments are embedded as a JSON column; they have no identity
// or lifecycle of their own.
type MediaItem struct {
	ID                   uuid.UUID           `json:"id"`
	OwnerID              uuid.UUID           `json:"owner_id"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	SourceURL            string              `json:"source_url,omitempty"`
	FilePath             string              `json:"-"`
	S3Key                string              `json:"s3_key,omitempty"`
	Language             string              `json:"language,omitempty"` // requested transcription language
	TranscriptionStatus  string              `json:"transcription_status"`
	TranscriptionLang    string              `json:"transcription_language,omitempty"` // as reported by the backend
	TranscriptionError   string              `json:"transcription_error,omitempty"`
	Segments             []TranscriptSegment `json:"segments,omitempty"`
	TranscribedAt        *time.Time          `json:"transcribed_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// TranscriptSegment is a single time-bounded unit of recognized speech.
// Start and End are seconds rounded to 2 decimal places; TimeStr is the
// zero-padded HH:MM:SS encoding of Start, always recomputed locally.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	TimeStr string  `json:"time_str"`
}
