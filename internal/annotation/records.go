// Package annotation defines the canonical record types produced by the
// ingestion pipeline. Every upstream format (COCO person tracking,
// COCO+OpenFace3 face analysis, WebVTT, RTTM, scene JSON) is converted into
// these types before validation and merging. Records are treated as values:
// nothing in this package mutates a record after construction.
package annotation

import (
	"time"

	"github.com/google/uuid"
)

// Canonical pipeline names. These are the keys under which records are
// merged into a StandardAnnotationData aggregate and the block names
// recognized inside complete-results bundles.
const (
	PipelinePersonTracking     = "person_tracking"
	PipelineFaceAnalysis       = "face_analysis"
	PipelineSpeechRecognition  = "speech_recognition"
	PipelineSpeakerDiarization = "speaker_diarization"
	PipelineSceneDetection     = "scene_detection"
)

// FormatVersion tags merged datasets so the dashboard can detect
// incompatible aggregates.
const FormatVersion = "1.1.0"

// SourceTag identifies the upstream product family the records came from.
const SourceTag = "videoannotator"

// BBox is a COCO-style bounding box: x, y, width, height. Array order is
// preserved exactly as it appeared in the source file.
type BBox [4]float64

// Keypoint is one entry of the 17-point COCO person skeleton.
// Visibility follows the COCO convention: 0 not labeled, 1 labeled but
// occluded, 2 labeled and visible.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility int     `json:"visibility"`
}

// PersonTrackingRecord is one tracked person detection on one frame.
type PersonTrackingRecord struct {
	ID          int64      `json:"id"`
	ImageID     int64      `json:"image_id"`
	Timestamp   float64    `json:"timestamp"`
	FrameNumber int64      `json:"frame_number"`
	BBox        BBox       `json:"bbox"`
	Keypoints   []Keypoint `json:"keypoints"`
	TrackID     *int64     `json:"track_id,omitempty"`
	Score       float64    `json:"score"`

	// Optional identity fields attached by downstream labeling.
	PersonID        string  `json:"person_id,omitempty"`
	PersonLabel     string  `json:"person_label,omitempty"`
	LabelConfidence float64 `json:"label_confidence,omitempty"`
	LabelingMethod  string  `json:"labeling_method,omitempty"`
}

// VisibleKeypoints counts keypoints with non-zero visibility.
func (r PersonTrackingRecord) VisibleKeypoints() int {
	n := 0
	for _, kp := range r.Keypoints {
		if kp.Visibility != 0 {
			n++
		}
	}
	return n
}

// SpeechCue is one WebVTT-derived caption cue. Times are seconds from the
// start of the video. Field names follow the WebVTT cue convention used by
// the dashboard rather than this repo's usual snake_case.
type SpeechCue struct {
	ID        string  `json:"id,omitempty"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Settings  string  `json:"settings,omitempty"`
}

// SpeakerSegment is one RTTM-derived who-spoke-when segment.
// Invariant: StartTime + Duration == EndTime within TimeTolerance.
type SpeakerSegment struct {
	FileID     string  `json:"file_id"`
	StartTime  float64 `json:"start_time"`
	Duration   float64 `json:"duration"`
	EndTime    float64 `json:"end_time"`
	SpeakerID  string  `json:"speaker_id"`
	Confidence float64 `json:"confidence"`
}

// SceneSegment is one scene boundary or scene detection. Segment-style
// sources fill start/end/duration; detection-style sources additionally
// carry a bbox, score, and frame range.
type SceneSegment struct {
	ID         string             `json:"id,omitempty"`
	VideoID    string             `json:"video_id,omitempty"`
	Timestamp  float64            `json:"timestamp"`
	StartTime  float64            `json:"start_time"`
	EndTime    float64            `json:"end_time"`
	Duration   float64            `json:"duration"`
	SceneType  string             `json:"scene_type"`
	BBox       *BBox              `json:"bbox,omitempty"`
	Score      float64            `json:"score,omitempty"`
	FrameStart *int64             `json:"frame_start,omitempty"`
	FrameEnd   *int64             `json:"frame_end,omitempty"`
	AllScores  map[string]float64 `json:"all_scores,omitempty"`
}

// ActionUnit is the intensity/presence pair for one facial action unit.
type ActionUnit struct {
	Intensity float64 `json:"intensity"`
	Presence  bool    `json:"presence"`
}

// HeadPose is a head orientation estimate in degrees.
type HeadPose struct {
	Pitch      float64 `json:"pitch"`
	Yaw        float64 `json:"yaw"`
	Roll       float64 `json:"roll"`
	Confidence float64 `json:"confidence"`
}

// Gaze is a 3-D gaze direction estimate.
type Gaze struct {
	Vector     [3]float64 `json:"vector"`
	Confidence float64    `json:"confidence"`
}

// Emotion is a facial-expression classification. Probabilities always
// contains every canonical emotion key; absent source values are zero.
type Emotion struct {
	Dominant      string             `json:"dominant"`
	Probabilities map[string]float64 `json:"probabilities"`
	Valence       float64            `json:"valence"`
	Arousal       float64            `json:"arousal"`
	Confidence    float64            `json:"confidence"`
}

// FaceFeatures is the optional OpenFace3 feature block on a face
// annotation. ActionUnits, when present, contains every canonical AU key.
type FaceFeatures struct {
	Landmarks2D [][2]float64          `json:"landmarks_2d,omitempty"`
	ActionUnits map[string]ActionUnit `json:"action_units,omitempty"`
	HeadPose    *HeadPose             `json:"head_pose,omitempty"`
	Gaze        *Gaze                 `json:"gaze,omitempty"`
	Emotion     *Emotion              `json:"emotion,omitempty"`
}

// FaceAnnotation is one detected face on one frame.
type FaceAnnotation struct {
	AnnotationID   int64         `json:"annotation_id"`
	BBox           BBox          `json:"bbox"`
	Timestamp      float64       `json:"timestamp"`
	FaceConfidence float64       `json:"face_confidence"`
	Features       *FaceFeatures `json:"features,omitempty"`
}

// VideoInfo describes the video the annotations belong to.
type VideoInfo struct {
	Filename  string  `json:"filename"`
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

// Metadata records provenance for a merged dataset. Pipelines is the
// ordered, duplicate-free list of pipeline names actually merged.
type Metadata struct {
	CreatedAt     time.Time `json:"created_at"`
	FormatVersion string    `json:"format_version"`
	Pipelines     []string  `json:"pipelines"`
	Source        string    `json:"source"`
}

// StandardAnnotationData is the merged, time-aligned aggregate handed to
// the presentation layer. A nil array means the pipeline was not run, not
// that it produced nothing.
type StandardAnnotationData struct {
	VideoInfo          *VideoInfo             `json:"video_info,omitempty"`
	PersonTracking     []PersonTrackingRecord `json:"person_tracking,omitempty"`
	FaceAnalysis       []FaceAnnotation       `json:"face_analysis,omitempty"`
	SpeechRecognition  []SpeechCue            `json:"speech_recognition,omitempty"`
	SpeakerDiarization []SpeakerSegment       `json:"speaker_diarization,omitempty"`
	SceneDetection     []SceneSegment         `json:"scene_detection,omitempty"`
	Metadata           Metadata               `json:"metadata"`
}

// NewID returns a fresh identifier for sessions and stored files.
func NewID() string {
	return uuid.NewString()
}
