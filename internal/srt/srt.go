// Package srt renders recognized segments as SubRip subtitles and writes them
// as artifacts.
package srt

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/stt"
)

// Extension is the artifact file extension.
const Extension = ".srt"

// MaxSeconds is the largest timestamp FormatTime renders; larger values
// clamp to it so the millisecond total stays within int64.
const MaxSeconds = 1e15

// FormatTime renders seconds as HH:MM:SS,mmm. The value is rounded to whole
// milliseconds first so a fraction that rounds to 1000 carries into the
// seconds field. Negative input clamps to zero and input above MaxSeconds
// clamps to MaxSeconds.
func FormatTime(seconds float64) string {
	switch {
	case seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, -1):
		seconds = 0
	case seconds > MaxSeconds:
		seconds = MaxSeconds
	}
	// Rounding the total, not the fraction, keeps values like 3661.9995
	// from losing the carry to float error in the subtraction.
	ms := int64(math.Round(seconds * 1000))

	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	secs := ms / 1000
	ms -= secs * 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// ParseTime parses HH:MM:SS,mmm (a '.' separator is accepted) into seconds.
func ParseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Replace(s, ".", ",", 1)

	clock, frac, ok := strings.Cut(s, ",")
	if !ok {
		return 0, fmt.Errorf("invalid srt timestamp %q: missing milliseconds", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid srt timestamp %q", s)
	}

	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", s, err)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || sec > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	if len(frac) != 3 {
		return 0, fmt.Errorf("invalid milliseconds in %q", s)
	}
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds in %q: %w", s, err)
	}
	if h < 0 || m < 0 || sec < 0 || ms < 0 {
		return 0, fmt.Errorf("negative component in %q", s)
	}

	total := ((h*60+m)*60+sec)*1000 + ms
	return float64(total) / 1000, nil
}

// Serialize renders segments in input order, numbering blocks from 1. Each
// block is "index\nstart --> end\ntext\n\n" with the text trimmed and inner
// line breaks kept.
func Serialize(segments []stt.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTime(seg.Start), FormatTime(seg.End), seg.TrimmedText())
	}
	return b.String()
}

// CountCues counts the cue blocks in rendered subtitle text.
func CountCues(data []byte) int {
	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "-->") {
			count++
		}
	}
	return count
}

// WriteFile renders segments and publishes them as <dir>/<stem>.srt.
func WriteFile(dir, stem string, segments []stt.Segment) (string, error) {
	return Publish(dir, stem, []byte(Serialize(segments)))
}

// Publish writes rendered subtitles to <dir>/<stem>.srt. The artifact only
// becomes visible once fully written; on failure nothing is left behind.
func Publish(dir, stem string, content []byte) (string, error) {
	const op = "serialize"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("create output dir: %w", err))
	}

	target := filepath.Join(dir, stem+Extension)
	tmp, err := os.CreateTemp(dir, "."+stem+"-*"+Extension+".tmp")
	if err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("write: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("close: %w", err))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("chmod: %w", err))
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "", op, fmt.Errorf("rename: %w", err))
	}
	committed = true

	return target, nil
}
