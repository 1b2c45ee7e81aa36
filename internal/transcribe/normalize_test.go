package transcribe

import (
	"testing"
)

// TestNormalizeSecondsPreservesCountAndOrder checks that normalization
// keeps backend order and count.
func TestNormalizeSecondsPreservesCountAndOrder(t *testing.T) {
	raw := []RawSegment{
		{Start: 0.0, End: 2.5, Text: "hello world"},
		{Start: 2.5, End: 5.125, Text: "second"},
		{Start: 5.125, End: 7.0, Text: "third"},
	}
	got := NormalizeSeconds(raw)
	if len(got) != len(raw) {
		t.Fatalf("segment count = %d, want %d", len(got), len(raw))
	}
	for i, s := range got {
		if s.Text != raw[i].Text {
			t.Fatalf("segment %d text = %q, want %q", i, s.Text, raw[i].Text)
		}
	}
}

// TestNormalizeSecondsRounding checks 2-decimal rounding of timestamps.
func TestNormalizeSecondsRounding(t *testing.T) {
	got := NormalizeSeconds([]RawSegment{{Start: 1.23456, End: 2.98765, Text: "x"}})
	if got[0].Start != 1.23 {
		t.Fatalf("start = %v, want 1.23", got[0].Start)
	}
	if got[0].End != 2.99 {
		t.Fatalf("end = %v, want 2.99", got[0].End)
	}
}

// TestNormalizeSecondsTimeStr checks that time_str is always recomputed
// as zero-padded HH:MM:SS from the truncated start.
func TestNormalizeSecondsTimeStr(t *testing.T) {
	cases := []struct {
		start float64
		want  string
	}{
		{0.0, "00:00:00"},
		{0.99, "00:00:00"},
		{59.9, "00:00:59"},
		{61.2, "00:01:01"},
		{3599.99, "00:59:59"},
		{3661.0, "01:01:01"},
		{7325.5, "02:02:05"},
	}
	for _, tc := range cases {
		got := NormalizeSeconds([]RawSegment{{Start: tc.start, End: tc.start + 1, Text: "x"}})
		if got[0].TimeStr != tc.want {
			t.Fatalf("time_str for start=%v = %q, want %q", tc.start, got[0].TimeStr, tc.want)
		}
	}
}

// TestNormalizeMillis checks millisecond offsets convert to seconds.
func TestNormalizeMillis(t *testing.T) {
	got := NormalizeMillis([]RawSegmentMillis{
		{StartMs: 0, EndMs: 2500, Text: "first"},
		{StartMs: 61250, EndMs: 63333, Text: "second"},
	})
	if len(got) != 2 {
		t.Fatalf("segment count = %d, want 2", len(got))
	}
	if got[0].Start != 0.0 || got[0].End != 2.5 {
		t.Fatalf("segment 0 = [%v, %v], want [0, 2.5]", got[0].Start, got[0].End)
	}
	if got[1].Start != 61.25 || got[1].End != 63.33 {
		t.Fatalf("segment 1 = [%v, %v], want [61.25, 63.33]", got[1].Start, got[1].End)
	}
	if got[1].TimeStr != "00:01:01" {
		t.Fatalf("segment 1 time_str = %q, want 00:01:01", got[1].TimeStr)
	}
}

// TestNormalizeEmptyInput checks that zero backend segments yield an
// empty list, not an error condition.
func TestNormalizeEmptyInput(t *testing.T) {
	if got := NormalizeSeconds(nil); len(got) != 0 {
		t.Fatalf("normalized nil input has %d segments, want 0", len(got))
	}
	if got := NormalizeMillis([]RawSegmentMillis{}); len(got) != 0 {
		t.Fatalf("normalized empty input has %d segments, want 0", len(got))
	}
}

// TestFormatTimestampNegative clamps negative starts to zero.
func TestFormatTimestampNegative(t *testing.T) {
	if got := FormatTimestamp(-3.2); got != "00:00:00" {
		t.Fatalf("FormatTimestamp(-3.2) = %q, want 00:00:00", got)
	}
}
