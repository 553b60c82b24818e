package parsers

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// ParseWebVTT converts a WebVTT caption file into speech cues. Cues whose
// end time is not after their start time are dropped with a warning; cues
// arriving out of start-time order are kept but reported.
func ParseWebVTT(data []byte) ([]annotation.SpeechCue, []string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() || !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "WEBVTT") {
		return nil, nil, structural("webvtt", "missing WEBVTT header")
	}

	var (
		warnings []string
		cues     []annotation.SpeechCue
		block    []string
		lastEnd  float64
		index    int
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		defer func() { block = block[:0] }()
		index++

		cue, err := parseCueBlock(block)
		if err != nil {
			warnf(&warnings, "cue %d: %v; dropped", index, err)
			return
		}
		if cue.EndTime <= cue.StartTime {
			warnf(&warnings, "cue %d: end %.3f is not after start %.3f; dropped", index, cue.EndTime, cue.StartTime)
			return
		}
		if cue.StartTime < lastEnd && len(cues) > 0 {
			warnf(&warnings, "cue %d: starts at %.3f before previous cue ended at %.3f", index, cue.StartTime, lastEnd)
		}
		lastEnd = cue.EndTime
		cues = append(cues, cue)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		// NOTE/STYLE/REGION blocks are metadata, not cues.
		if len(block) == 0 && (strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION")) {
			block = append(block, line)
			for scanner.Scan() {
				if strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r")) == "" {
					break
				}
			}
			block = block[:0]
			continue
		}
		block = append(block, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, nil, structural("webvtt", "read failed: %v", err)
	}
	return cues, warnings, nil
}

func parseCueBlock(block []string) (annotation.SpeechCue, error) {
	var cue annotation.SpeechCue

	timingIdx := -1
	for i, line := range block {
		if strings.Contains(line, "-->") {
			timingIdx = i
			break
		}
	}
	if timingIdx == -1 {
		return cue, fmt.Errorf("no timing line")
	}
	if timingIdx == 1 {
		cue.ID = strings.TrimSpace(block[0])
	}

	parts := strings.SplitN(block[timingIdx], "-->", 2)
	start, err := parseVTTTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return cue, fmt.Errorf("bad start timestamp: %v", err)
	}
	rest := strings.Fields(strings.TrimSpace(parts[1]))
	if len(rest) == 0 {
		return cue, fmt.Errorf("missing end timestamp")
	}
	end, err := parseVTTTimestamp(rest[0])
	if err != nil {
		return cue, fmt.Errorf("bad end timestamp: %v", err)
	}
	if len(rest) > 1 {
		cue.Settings = strings.Join(rest[1:], " ")
	}

	cue.StartTime = start
	cue.EndTime = end
	cue.Text = strings.Join(block[timingIdx+1:], "\n")
	return cue, nil
}

// parseVTTTimestamp parses HH:MM:SS.mmm or MM:SS.mmm into seconds.
func parseVTTTimestamp(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}

	var hours, minutes float64
	var err error
	if len(parts) == 3 {
		if hours, err = strconv.ParseFloat(parts[0], 64); err != nil {
			return 0, fmt.Errorf("malformed hours in %q", s)
		}
		parts = parts[1:]
	}
	if minutes, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, fmt.Errorf("malformed minutes in %q", s)
	}
	seconds, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed seconds in %q", s)
	}
	if hours < 0 || minutes < 0 || seconds < 0 {
		return 0, fmt.Errorf("negative component in %q", s)
	}
	return hours*3600 + minutes*60 + seconds, nil
}
