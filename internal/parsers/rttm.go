package parsers

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// RTTM SPEAKER line layout:
//
//	SPEAKER file_id channel tbeg tdur ortho stype speaker_id conf [slat]
const rttmMinFields = 9

// ParseRTTM converts an RTTM diarization file into speaker segments.
// Non-SPEAKER lines are skipped with a warning; a file with no SPEAKER
// lines at all is a structural failure. The declared duration is the
// source of truth for time arithmetic: end_time is always start + duration.
func ParseRTTM(data []byte) ([]annotation.SpeakerSegment, []string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		warnings []string
		segments []annotation.SpeakerSegment
		lineNo   int
		nonEmpty int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		nonEmpty++

		fields := strings.Fields(line)
		if fields[0] != "SPEAKER" {
			warnf(&warnings, "line %d: unsupported record type %q; skipped", lineNo, fields[0])
			continue
		}
		if len(fields) < rttmMinFields {
			warnf(&warnings, "line %d: %d fields, want at least %d; skipped", lineNo, len(fields), rttmMinFields)
			continue
		}

		start, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			warnf(&warnings, "line %d: malformed start time %q; skipped", lineNo, fields[3])
			continue
		}
		duration, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			warnf(&warnings, "line %d: malformed duration %q; skipped", lineNo, fields[4])
			continue
		}
		if duration <= 0 {
			warnf(&warnings, "line %d: non-positive duration %.3f; skipped", lineNo, duration)
			continue
		}
		if start < 0 {
			warnf(&warnings, "line %d: negative start time %.3f; skipped", lineNo, start)
			continue
		}

		segments = append(segments, annotation.SpeakerSegment{
			FileID:     fields[1],
			StartTime:  start,
			Duration:   duration,
			EndTime:    start + duration,
			SpeakerID:  fields[7],
			Confidence: parseRTTMConfidence(fields[8]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, structural("rttm", "read failed: %v", err)
	}
	if len(segments) == 0 && nonEmpty > 0 {
		return nil, nil, structural("rttm", "no SPEAKER records in %d lines", nonEmpty)
	}
	return segments, warnings, nil
}

// parseRTTMConfidence maps the conf column to [0,1], treating the RTTM
// missing-value token <NA> as 0.
func parseRTTMConfidence(s string) float64 {
	if s == "<NA>" {
		return 0
	}
	conf, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return conf
}

// NormalizeSpeakerSegment reconciles a segment whose declared end_time
// disagrees with start + duration beyond the 1ms tolerance: the duration
// wins, end_time is recomputed, and the repair is reported. Used for
// segments arriving pre-shaped inside bundles, where an end_time column
// exists to disagree with.
func NormalizeSpeakerSegment(seg annotation.SpeakerSegment, path string, warnings *[]string) annotation.SpeakerSegment {
	expected := seg.StartTime + seg.Duration
	if seg.EndTime == 0 && seg.Duration > 0 {
		seg.EndTime = expected
		return seg
	}
	if math.Abs(expected-seg.EndTime) > annotation.TimeTolerance {
		warnf(warnings, "%s: end_time %.4f disagrees with start+duration %.4f; recomputed from duration",
			path, seg.EndTime, expected)
		seg.EndTime = expected
	}
	return seg
}
