// Package transcribe drives external speech-to-text engines and turns
// their heterogeneous output into the canonical segment shape stored on
// media items.
package transcribe

import (
	"context"

	"github.com/linguaclip/backend/internal/models"
)

// Transcript is the canonical result of one transcription run.
type Transcript struct {
	Language string
	Segments []models.TranscriptSegment
}

// Backend is a pluggable transcription engine (local CLI or remote API).
// Implementations return normalized segments; an empty segment list is a
// valid result, not an error.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, mediaPath, language string) (*Transcript, error)
}

// supportedLanguages is the allow-list of requestable language codes.
// Empty string means auto-detect where the backend supports it.
var supportedLanguages = map[string]bool{
	"":     true,
	"auto": true,
	"en":   true,
	"zh":   true,
	"ja":   true,
	"ko":   true,
	"fr":   true,
	"de":   true,
	"es":   true,
	"ru":   true,
	"pt":   true,
	"it":   true,
}

// LanguageSupported reports whether lang is on the allow-list.
func LanguageSupported(lang string) bool {
	return supportedLanguages[lang]
}
