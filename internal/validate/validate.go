// Package validate re-checks schema invariants over canonical records,
// independently of which parser produced them. Validation never mutates:
// per-record violations yield a ValidationError with the offending field
// path and raw value, and the salvage helpers keep valid records while
// reporting the rest as warnings.
package validate

import (
	"fmt"
	"math"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// ValidationError describes one invariant violation.
type ValidationError struct {
	Path    string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Path, e.Message, e.Value)
}

func violation(path, msg string, value any) *ValidationError {
	return &ValidationError{Path: path, Value: value, Message: msg}
}

// PersonRecord checks one person-tracking record. path locates the record
// in its source file, e.g. "person_tracking[3]".
func PersonRecord(r annotation.PersonTrackingRecord, path string) error {
	if len(r.Keypoints) != annotation.NumKeypoints {
		return violation(path+".keypoints", fmt.Sprintf("want exactly %d keypoints", annotation.NumKeypoints), len(r.Keypoints))
	}
	for i, kp := range r.Keypoints {
		if kp.Visibility < 0 || kp.Visibility > 2 {
			return violation(fmt.Sprintf("%s.keypoints[%d].visibility", path, i), "visibility flag must be 0, 1, or 2", kp.Visibility)
		}
	}
	if r.Score < 0 || r.Score > 1 {
		return violation(path+".score", "must be within [0,1]", r.Score)
	}
	if r.LabelConfidence < 0 || r.LabelConfidence > 1 {
		return violation(path+".label_confidence", "must be within [0,1]", r.LabelConfidence)
	}
	if r.Timestamp < 0 {
		return violation(path+".timestamp", "must be non-negative", r.Timestamp)
	}
	if r.BBox[2] < 0 || r.BBox[3] < 0 {
		return violation(path+".bbox", "width and height must be non-negative", r.BBox)
	}
	return nil
}

// Cue checks one speech cue.
func Cue(c annotation.SpeechCue, path string) error {
	if c.StartTime < 0 {
		return violation(path+".startTime", "must be non-negative", c.StartTime)
	}
	if c.EndTime <= c.StartTime {
		return violation(path+".endTime", "must be after startTime", c.EndTime)
	}
	return nil
}

// SpeakerSegment checks one diarization segment, including the
// load-bearing cross-field rule start_time + duration == end_time within
// 1ms.
func SpeakerSegment(s annotation.SpeakerSegment, path string) error {
	if s.StartTime < 0 {
		return violation(path+".start_time", "must be non-negative", s.StartTime)
	}
	if s.Duration <= 0 {
		return violation(path+".duration", "must be positive", s.Duration)
	}
	if drift := math.Abs(s.StartTime + s.Duration - s.EndTime); drift > annotation.TimeTolerance {
		return violation(path+".end_time",
			fmt.Sprintf("start_time + duration disagrees with end_time by %.4fs", drift), s.EndTime)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return violation(path+".confidence", "must be within [0,1]", s.Confidence)
	}
	if s.SpeakerID == "" {
		return violation(path+".speaker_id", "must not be empty", s.SpeakerID)
	}
	return nil
}

// SceneSegment checks one scene segment.
func SceneSegment(s annotation.SceneSegment, path string) error {
	if s.StartTime < 0 {
		return violation(path+".start_time", "must be non-negative", s.StartTime)
	}
	if s.EndTime < s.StartTime {
		return violation(path+".end_time", "must not precede start_time", s.EndTime)
	}
	if s.Duration < 0 {
		return violation(path+".duration", "must be non-negative", s.Duration)
	}
	for label, score := range s.AllScores {
		if score < 0 || score > 1 {
			return violation(fmt.Sprintf("%s.all_scores[%s]", path, label), "must be within [0,1]", score)
		}
	}
	return nil
}

// FaceRecord checks one face annotation, including that canonicalized
// emotion blocks carry the full probability key set.
func FaceRecord(f annotation.FaceAnnotation, path string) error {
	if f.FaceConfidence < 0 || f.FaceConfidence > 1 {
		return violation(path+".face_confidence", "must be within [0,1]", f.FaceConfidence)
	}
	if f.Timestamp < 0 {
		return violation(path+".timestamp", "must be non-negative", f.Timestamp)
	}
	if f.Features == nil || f.Features.Emotion == nil {
		return nil
	}
	emo := f.Features.Emotion
	for _, label := range annotation.CanonicalEmotions {
		p, ok := emo.Probabilities[label]
		if !ok {
			return violation(path+".features.emotion.probabilities", "missing canonical label "+label, emo.Probabilities)
		}
		if p < 0 || p > 1 {
			return violation(fmt.Sprintf("%s.features.emotion.probabilities[%s]", path, label), "must be within [0,1]", p)
		}
	}
	return nil
}

// salvage keeps records that pass check and turns each failure into a
// warning, per the design preference for maximizing usable data.
func salvage[T any](records []T, kind string, check func(T, string) error) ([]T, []string) {
	valid := make([]T, 0, len(records))
	var warnings []string
	for i, rec := range records {
		if err := check(rec, fmt.Sprintf("%s[%d]", kind, i)); err != nil {
			warnings = append(warnings, "invalid record dropped: "+err.Error())
			continue
		}
		valid = append(valid, rec)
	}
	return valid, warnings
}

// PersonTracking validates a parsed person-tracking file, dropping
// invalid records with warnings.
func PersonTracking(records []annotation.PersonTrackingRecord) ([]annotation.PersonTrackingRecord, []string) {
	return salvage(records, annotation.PipelinePersonTracking, PersonRecord)
}

// SpeechCues validates parsed speech cues.
func SpeechCues(cues []annotation.SpeechCue) ([]annotation.SpeechCue, []string) {
	return salvage(cues, annotation.PipelineSpeechRecognition, Cue)
}

// SpeakerSegments validates parsed diarization segments.
func SpeakerSegments(segments []annotation.SpeakerSegment) ([]annotation.SpeakerSegment, []string) {
	return salvage(segments, annotation.PipelineSpeakerDiarization, SpeakerSegment)
}

// SceneSegments validates parsed scene segments.
func SceneSegments(segments []annotation.SceneSegment) ([]annotation.SceneSegment, []string) {
	return salvage(segments, annotation.PipelineSceneDetection, SceneSegment)
}

// FaceAnnotations validates parsed face annotations.
func FaceAnnotations(faces []annotation.FaceAnnotation) ([]annotation.FaceAnnotation, []string) {
	return salvage(faces, annotation.PipelineFaceAnalysis, FaceRecord)
}
