package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// Block is one pipeline's worth of parsed records inside a bundle.
// Exactly one record slice is populated, matching Pipeline.
type Block struct {
	Pipeline string
	Person   []annotation.PersonTrackingRecord
	Faces    []annotation.FaceAnnotation
	Speech   []annotation.SpeechCue
	Speakers []annotation.SpeakerSegment
	Scenes   []annotation.SceneSegment
}

// BundleResult is a parsed complete-results bundle. Blocks preserves the
// document order of the pipeline_results keys so merge provenance reflects
// how the producer wrote the file.
type BundleResult struct {
	VideoInfo *annotation.VideoInfo
	Blocks    []Block
}

// ParseBundle parses a complete-results bundle: a JSON object whose
// pipeline_results member maps pipeline names onto per-pipeline payloads.
// Person-tracking and face blocks may be full COCO documents or arrays of
// canonical records; speech, diarization, and scene blocks are arrays.
// Unknown pipeline names and blocks that fail to parse are reported and
// skipped rather than failing the bundle.
func ParseBundle(data []byte) (*BundleResult, []string, error) {
	var envelope struct {
		VideoInfo       *annotation.VideoInfo `json:"video_info"`
		PipelineResults json.RawMessage       `json:"pipeline_results"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, structural("bundle", "not a JSON object: %v", err)
	}
	if len(envelope.PipelineResults) == 0 {
		return nil, nil, structural("bundle", "missing pipeline_results object")
	}

	names, payloads, err := orderedMembers(envelope.PipelineResults)
	if err != nil {
		return nil, nil, structural("bundle", "pipeline_results: %v", err)
	}

	result := &BundleResult{VideoInfo: envelope.VideoInfo}
	var warnings []string

	for i, name := range names {
		block, blockWarnings, err := parseBlock(name, payloads[i])
		for _, w := range blockWarnings {
			warnf(&warnings, "%s: %s", name, w)
		}
		if err != nil {
			warnf(&warnings, "%s: block skipped: %v", name, err)
			continue
		}
		result.Blocks = append(result.Blocks, block)
	}

	return result, warnings, nil
}

// orderedMembers walks a JSON object with a token decoder, returning its
// member names and raw values in document order. encoding/json maps do not
// preserve order, and merge provenance depends on it.
func orderedMembers(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var names []string
	var payloads []json.RawMessage
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("non-string member name %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("member %q: %w", key, err)
		}
		names = append(names, key)
		payloads = append(payloads, value)
	}
	return names, payloads, nil
}

func parseBlock(name string, payload json.RawMessage) (Block, []string, error) {
	block := Block{Pipeline: name}

	switch name {
	case annotation.PipelinePersonTracking:
		if isArray(payload) {
			err := json.Unmarshal(payload, &block.Person)
			return block, nil, err
		}
		records, warnings, err := ParsePersonTracking(payload)
		block.Person = records
		return block, warnings, err

	case annotation.PipelineFaceAnalysis:
		if isArray(payload) {
			err := json.Unmarshal(payload, &block.Faces)
			return block, nil, err
		}
		records, warnings, err := ParseFaceAnnotations(payload)
		block.Faces = records
		return block, warnings, err

	case annotation.PipelineSpeechRecognition:
		var warnings []string
		if err := json.Unmarshal(payload, &block.Speech); err != nil {
			return block, nil, fmt.Errorf("not a speech cue array: %w", err)
		}
		kept := block.Speech[:0]
		for i, cue := range block.Speech {
			if cue.EndTime <= cue.StartTime {
				warnf(&warnings, "cues[%d]: end %.3f is not after start %.3f; dropped", i, cue.EndTime, cue.StartTime)
				continue
			}
			kept = append(kept, cue)
		}
		block.Speech = kept
		return block, warnings, nil

	case annotation.PipelineSpeakerDiarization:
		var warnings []string
		if err := json.Unmarshal(payload, &block.Speakers); err != nil {
			return block, nil, fmt.Errorf("not a speaker segment array: %w", err)
		}
		for i := range block.Speakers {
			block.Speakers[i] = NormalizeSpeakerSegment(block.Speakers[i], fmt.Sprintf("segments[%d]", i), &warnings)
		}
		return block, warnings, nil

	case annotation.PipelineSceneDetection:
		records, warnings, err := ParseScenes(payload)
		block.Scenes = records
		return block, warnings, err

	default:
		return block, nil, fmt.Errorf("unknown pipeline %q", name)
	}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
