// Package detect infers what kind of annotation file a byte payload is.
// Detection is a pure function of the input: it escalates through three
// tiers (extension/MIME, shallow JSON shape, content analysis), stopping as
// soon as a tier is confident, and never silently guesses: an
// unidentifiable file comes back as TypeUnknown with the most specific
// reason collected.
package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// Confidence is the detector's graded certainty about a verdict.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceUnknown Confidence = "unknown"
)

// TypeCompleteResults marks a bundle file aggregating several pipelines'
// results under one JSON root. TypeUnknown marks a file no tier could
// identify.
const (
	TypeCompleteResults = "complete_results"
	TypeUnknown         = "unknown"
)

// ProductMarker is the substring of info.description that identifies
// VideoAnnotator COCO exports.
const ProductMarker = "VideoAnnotator"

// Result is a detection verdict.
type Result struct {
	Type       string     `json:"type"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason"`
}

// Detect inspects data and returns a (type, confidence, reason) verdict.
// contentType is the declared MIME type, if any; it may be empty.
func Detect(data []byte, filename, contentType string) Result {
	var reasons []string

	// Tier 1: extension and declared MIME type. Cheap, at most medium
	// confidence, and never final; a later tier can still upgrade or
	// contradict it.
	candidate := extensionTier(filename, contentType, &reasons)

	// Tier 2: shallow JSON shape. Only attempted when the payload parses
	// as JSON; a positive shape match is high confidence and final.
	if res, ok := shapeTier(data, &reasons); ok {
		return res
	}

	// Tier 3: content analysis over sampled structure.
	if res, ok := contentTier(data, &reasons); ok {
		return res
	}

	if candidate.Type != TypeUnknown {
		candidate.Reason = joinReasons(reasons)
		return candidate
	}

	return Result{
		Type:       TypeUnknown,
		Confidence: ConfidenceUnknown,
		Reason:     joinReasons(reasons),
	}
}

func extensionTier(filename, contentType string, reasons *[]string) Result {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".vtt", ".webvtt":
		*reasons = append(*reasons, fmt.Sprintf("extension %s suggests WebVTT captions", ext))
		return Result{Type: annotation.PipelineSpeechRecognition, Confidence: ConfidenceMedium}
	case ".rttm":
		*reasons = append(*reasons, fmt.Sprintf("extension %s suggests RTTM diarization", ext))
		return Result{Type: annotation.PipelineSpeakerDiarization, Confidence: ConfidenceMedium}
	}

	switch {
	case strings.Contains(contentType, "text/vtt"):
		*reasons = append(*reasons, "content type text/vtt suggests WebVTT captions")
		return Result{Type: annotation.PipelineSpeechRecognition, Confidence: ConfidenceMedium}
	case ext == ".json" || strings.Contains(contentType, "application/json"):
		*reasons = append(*reasons, "JSON payload, shape inspection required")
	case ext != "":
		*reasons = append(*reasons, fmt.Sprintf("extension %s not associated with any pipeline", ext))
	default:
		*reasons = append(*reasons, "no filename extension or content type to go on")
	}
	return Result{Type: TypeUnknown, Confidence: ConfidenceUnknown}
}

// shallowDoc is the minimal top-level view used by the shape tier. Only
// the first annotation is inspected; deep traversal belongs to tier 3.
type shallowDoc struct {
	Info struct {
		Description string `json:"description"`
	} `json:"info"`
	Images          json.RawMessage   `json:"images"`
	Annotations     []json.RawMessage `json:"annotations"`
	PipelineResults json.RawMessage   `json:"pipeline_results"`
	Scenes          []json.RawMessage `json:"scenes"`
}

type shallowAnnotation struct {
	Keypoints []float64       `json:"keypoints"`
	BBox      []float64       `json:"bbox"`
	OpenFace3 json.RawMessage `json:"openface3"`
	SceneType string          `json:"scene_type"`
	AllScores json.RawMessage `json:"all_scores"`
}

func shapeTier(data []byte, reasons *[]string) (Result, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*reasons = append(*reasons, "empty payload")
		return Result{}, false
	}

	switch trimmed[0] {
	case '{':
		var doc shallowDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			*reasons = append(*reasons, "payload is not valid JSON")
			return Result{}, false
		}
		return objectShape(doc, reasons)
	case '[':
		var items []shallowAnnotation
		if err := json.Unmarshal(trimmed, &items); err != nil {
			*reasons = append(*reasons, "top-level array with non-object elements")
			return Result{}, false
		}
		return arrayShape(items, reasons)
	default:
		return Result{}, false
	}
}

func objectShape(doc shallowDoc, reasons *[]string) (Result, bool) {
	if len(doc.PipelineResults) > 0 {
		return Result{
			Type:       TypeCompleteResults,
			Confidence: ConfidenceHigh,
			Reason:     "top-level pipeline_results object",
		}, true
	}

	if strings.Contains(doc.Info.Description, ProductMarker) && len(doc.Annotations) == 0 {
		// A bundle exported without per-annotation content; keep escalating.
		*reasons = append(*reasons, "VideoAnnotator description but no annotations array")
	}

	if len(doc.Annotations) > 0 {
		var first shallowAnnotation
		if err := json.Unmarshal(doc.Annotations[0], &first); err != nil {
			*reasons = append(*reasons, "annotations array with non-object first element")
			return Result{}, false
		}

		if len(first.OpenFace3) > 0 {
			return Result{
				Type:       annotation.PipelineFaceAnalysis,
				Confidence: ConfidenceHigh,
				Reason:     "annotations carry openface3 feature blocks",
			}, true
		}
		if len(first.Keypoints) > 0 && len(first.BBox) > 0 {
			return Result{
				Type:       annotation.PipelinePersonTracking,
				Confidence: ConfidenceHigh,
				Reason:     "annotations carry keypoints and bbox arrays",
			}, true
		}
		if first.SceneType != "" || len(first.AllScores) > 0 {
			return Result{
				Type:       annotation.PipelineSceneDetection,
				Confidence: ConfidenceHigh,
				Reason:     "annotations carry scene_type/all_scores fields",
			}, true
		}
		*reasons = append(*reasons, "annotations array without pose, face, or scene markers")
	}

	if len(doc.Scenes) > 0 {
		return Result{
			Type:       annotation.PipelineSceneDetection,
			Confidence: ConfidenceHigh,
			Reason:     "top-level scenes array",
		}, true
	}

	return Result{}, false
}

func arrayShape(items []shallowAnnotation, reasons *[]string) (Result, bool) {
	if len(items) == 0 {
		*reasons = append(*reasons, "empty top-level array")
		return Result{}, false
	}
	first := items[0]
	if first.SceneType != "" || len(first.AllScores) > 0 {
		return Result{
			Type:       annotation.PipelineSceneDetection,
			Confidence: ConfidenceHigh,
			Reason:     "array elements carry scene_type/all_scores fields",
		}, true
	}
	*reasons = append(*reasons, "top-level array without scene markers")
	return Result{}, false
}

// contentTier scores the payload against each format's statistical
// signature and maps the best score onto a confidence tier:
// >0.7 high, >0.4 medium, otherwise inconclusive.
func contentTier(data []byte, reasons *[]string) (Result, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Result{}, false
	}

	if score, reason := scoreWebVTT(trimmed); score > 0 {
		return scored(annotation.PipelineSpeechRecognition, score, reason, reasons)
	}
	if score, reason := scoreRTTM(trimmed); score > 0 {
		return scored(annotation.PipelineSpeakerDiarization, score, reason, reasons)
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if score, reason := scoreJSONContent(trimmed); score > 0 {
			return scored(annotation.PipelinePersonTracking, score, reason, reasons)
		}
		*reasons = append(*reasons, "JSON structure matches no known annotation format")
	}
	return Result{}, false
}

func scored(typ string, score float64, reason string, reasons *[]string) (Result, bool) {
	switch {
	case score > 0.7:
		return Result{Type: typ, Confidence: ConfidenceHigh, Reason: reason}, true
	case score > 0.4:
		return Result{Type: typ, Confidence: ConfidenceMedium, Reason: reason}, true
	default:
		*reasons = append(*reasons, fmt.Sprintf("weak signal (score %.2f): %s", score, reason))
		return Result{}, false
	}
}

func scoreWebVTT(data []byte) (float64, string) {
	// Strip a UTF-8 BOM before checking the magic header.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if bytes.HasPrefix(data, []byte("WEBVTT")) {
		return 1.0, "WEBVTT header present"
	}
	lines := splitLines(data, 50)
	timings := 0
	for _, line := range lines {
		if strings.Contains(line, "-->") {
			timings++
		}
	}
	if len(lines) == 0 || timings == 0 {
		return 0, ""
	}
	score := float64(timings) / float64(len(lines)) * 2 // cue blocks are ~1/3 timing lines
	if score > 1 {
		score = 1
	}
	return score, fmt.Sprintf("%d cue timing lines in first %d lines", timings, len(lines))
}

func scoreRTTM(data []byte) (float64, string) {
	lines := splitLines(data, 50)
	if len(lines) == 0 {
		return 0, ""
	}
	speaker := 0
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 9 && fields[0] == "SPEAKER" {
			speaker++
		}
	}
	if speaker == 0 {
		return 0, ""
	}
	return float64(speaker) / float64(len(lines)),
		fmt.Sprintf("%d of %d lines are RTTM SPEAKER records", speaker, len(lines))
}

// scoreJSONContent samples annotation entries for the pose signature:
// flat numeric arrays of exactly 51 scalars (17 keypoint triplets).
func scoreJSONContent(data []byte) (float64, string) {
	var doc struct {
		Annotations []struct {
			Keypoints []float64 `json:"keypoints"`
		} `json:"annotations"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Annotations) == 0 {
		return 0, ""
	}
	sample := doc.Annotations
	if len(sample) > 100 {
		sample = sample[:100]
	}
	triplets := 0
	for _, a := range sample {
		if len(a.Keypoints) == annotation.KeypointScalars {
			triplets++
		}
	}
	if triplets == 0 {
		return 0, ""
	}
	return float64(triplets) / float64(len(sample)),
		fmt.Sprintf("%d of %d sampled annotations hold 17 keypoint triplets", triplets, len(sample))
}

func splitLines(data []byte, max int) []string {
	var out []string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no recognizable structure"
	}
	return strings.Join(reasons, "; ")
}
