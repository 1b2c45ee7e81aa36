package transcribe

import (
	"fmt"
	"math"

	"github.com/linguaclip/backend/internal/models"
)

// RawSegment is one backend-reported segment with timestamps in seconds.
type RawSegment struct {
	Start float64
	End   float64
	Text  string
}

// RawSegmentMillis is one backend-reported segment with timestamps in
// milliseconds (remote ASR detail format).
type RawSegmentMillis struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// NormalizeSeconds converts seconds-based backend segments into the
// canonical shape: timestamps rounded to 2 decimal places, TimeStr
// recomputed from the truncated start. Order is preserved as given.
func NormalizeSeconds(raw []RawSegment) []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, 0, len(raw))
	for _, s := range raw {
		start := round2(s.Start)
		out = append(out, models.TranscriptSegment{
			Start:   start,
			End:     round2(s.End),
			Text:    s.Text,
			TimeStr: FormatTimestamp(start),
		})
	}
	return out
}

// NormalizeMillis converts millisecond-based backend segments into the
// canonical shape.
func NormalizeMillis(raw []RawSegmentMillis) []models.TranscriptSegment {
	secs := make([]RawSegment, 0, len(raw))
	for _, s := range raw {
		secs = append(secs, RawSegment{
			Start: float64(s.StartMs) / 1000.0,
			End:   float64(s.EndMs) / 1000.0,
			Text:  s.Text,
		})
	}
	return NormalizeSeconds(secs)
}

// FormatTimestamp renders seconds as zero-padded HH:MM:SS, truncating
// fractional seconds. It is always computed locally and never trusted
// from a backend.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
