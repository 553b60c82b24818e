package parsers

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/annolens/annolens-agent/internal/annotation"
)

type rawScene struct {
	ID         json.RawMessage    `json:"id"`
	VideoID    string             `json:"video_id"`
	Timestamp  *float64           `json:"timestamp"`
	StartTime  *float64           `json:"start_time"`
	EndTime    *float64           `json:"end_time"`
	Duration   *float64           `json:"duration"`
	SceneType  string             `json:"scene_type"`
	BBox       []float64          `json:"bbox"`
	Score      float64            `json:"score"`
	FrameStart *int64             `json:"frame_start"`
	FrameEnd   *int64             `json:"frame_end"`
	AllScores  map[string]float64 `json:"all_scores"`
}

// ParseScenes converts a scene-boundary JSON file into scene segments.
// Both shapes upstream pipelines emit are accepted: segment-style records
// (start/end/duration) and detection-style records (bbox/score/frame
// range). Either a top-level array or an object with a scenes array works.
func ParseScenes(data []byte) ([]annotation.SceneSegment, []string, error) {
	trimmed := bytes.TrimSpace(data)

	var raws []rawScene
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, structural("scene", "not a scene array: %v", err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var doc struct {
			Scenes []rawScene `json:"scenes"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, nil, structural("scene", "not a scene document: %v", err)
		}
		if doc.Scenes == nil {
			return nil, nil, structural("scene", "object has no scenes array")
		}
		raws = doc.Scenes
	default:
		return nil, nil, structural("scene", "neither a JSON array nor object")
	}

	var warnings []string
	segments := make([]annotation.SceneSegment, 0, len(raws))

	for i, raw := range raws {
		seg, ok := normalizeScene(raw, i, &warnings)
		if !ok {
			continue
		}
		segments = append(segments, seg)
	}
	return segments, warnings, nil
}

// normalizeScene folds both record styles into one SceneSegment shape,
// deriving whichever of end_time/duration is missing from the other.
func normalizeScene(raw rawScene, idx int, warnings *[]string) (annotation.SceneSegment, bool) {
	seg := annotation.SceneSegment{
		ID:         sceneID(raw.ID),
		VideoID:    raw.VideoID,
		SceneType:  raw.SceneType,
		Score:      raw.Score,
		FrameStart: raw.FrameStart,
		FrameEnd:   raw.FrameEnd,
		AllScores:  raw.AllScores,
	}

	if raw.StartTime != nil {
		seg.StartTime = *raw.StartTime
	} else if raw.Timestamp != nil {
		seg.StartTime = *raw.Timestamp
	}

	switch {
	case raw.EndTime != nil && raw.Duration != nil:
		seg.EndTime = *raw.EndTime
		seg.Duration = *raw.Duration
	case raw.EndTime != nil:
		seg.EndTime = *raw.EndTime
		seg.Duration = seg.EndTime - seg.StartTime
	case raw.Duration != nil:
		seg.Duration = *raw.Duration
		seg.EndTime = seg.StartTime + seg.Duration
	case len(raw.BBox) == 4 || raw.Timestamp != nil:
		// Detection-style record: a point event, zero duration.
		seg.EndTime = seg.StartTime
	default:
		warnf(warnings, "scenes[%d]: no usable time fields; skipped", idx)
		return seg, false
	}

	if raw.Timestamp != nil {
		seg.Timestamp = *raw.Timestamp
	} else {
		seg.Timestamp = seg.StartTime
	}

	if len(raw.BBox) == 4 {
		bbox := annotation.BBox{raw.BBox[0], raw.BBox[1], raw.BBox[2], raw.BBox[3]}
		seg.BBox = &bbox
	} else if len(raw.BBox) != 0 {
		warnf(warnings, "scenes[%d]: bbox has %d elements, want 4; dropped", idx, len(raw.BBox))
	}

	if seg.SceneType == "" {
		seg.SceneType = "scene"
	}
	return seg, true
}

// sceneID tolerates both string and numeric ids in source files.
func sceneID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}
