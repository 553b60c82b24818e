// Package merge accumulates parsed, validated per-pipeline records into
// one StandardAnnotationData aggregate. Merging the same pipeline key
// twice replaces the previous records rather than appending, so duplicate
// uploads cannot silently double a dataset; because merges always replace
// by key, a merge conflict cannot occur by construction. All mutation goes
// through one mutex, serializing concurrent merges.
package merge

import (
	"sync"
	"time"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// State is the aggregate's position in the ingestion session lifecycle.
type State string

const (
	// StateEmpty: nothing merged yet.
	StateEmpty State = "empty"
	// StateAccumulating: a merge is being applied.
	StateAccumulating State = "accumulating"
	// StateReady: at least one pipeline has been merged. There is no
	// sealed terminal state; new files can always be added later.
	StateReady State = "ready"
)

// Aggregate is a thread-safe, accumulate-only annotation dataset.
type Aggregate struct {
	mu       sync.Mutex
	data     annotation.StandardAnnotationData
	state    State
	warnings []string
}

// New returns an empty aggregate.
func New() *Aggregate {
	return &Aggregate{
		state: StateEmpty,
		data: annotation.StandardAnnotationData{
			Metadata: annotation.Metadata{
				CreatedAt:     time.Now().UTC(),
				FormatVersion: annotation.FormatVersion,
				Source:        annotation.SourceTag,
			},
		},
	}
}

// Restore rebuilds an aggregate from a previously persisted dataset.
func Restore(data annotation.StandardAnnotationData) *Aggregate {
	a := &Aggregate{data: data, state: StateEmpty}
	if len(data.Metadata.Pipelines) > 0 {
		a.state = StateReady
	}
	return a
}

func (a *Aggregate) beginMerge(pipeline string) {
	a.state = StateAccumulating
	for _, p := range a.data.Metadata.Pipelines {
		if p == pipeline {
			a.state = StateReady
			return
		}
	}
	a.data.Metadata.Pipelines = append(a.data.Metadata.Pipelines, pipeline)
}

func (a *Aggregate) endMerge() {
	a.state = StateReady
}

// SetVideoInfo attaches or replaces the dataset's video description.
func (a *Aggregate) SetVideoInfo(info *annotation.VideoInfo) {
	if info == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := *info
	a.data.VideoInfo = &copied
}

// MergePersonTracking replaces the person_tracking records.
func (a *Aggregate) MergePersonTracking(records []annotation.PersonTrackingRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginMerge(annotation.PipelinePersonTracking)
	a.data.PersonTracking = records
	a.endMerge()
}

// MergeFaceAnalysis replaces the face_analysis records.
func (a *Aggregate) MergeFaceAnalysis(records []annotation.FaceAnnotation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginMerge(annotation.PipelineFaceAnalysis)
	a.data.FaceAnalysis = records
	a.endMerge()
}

// MergeSpeechRecognition replaces the speech_recognition cues.
func (a *Aggregate) MergeSpeechRecognition(cues []annotation.SpeechCue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginMerge(annotation.PipelineSpeechRecognition)
	a.data.SpeechRecognition = cues
	a.endMerge()
}

// MergeSpeakerDiarization replaces the speaker_diarization segments.
func (a *Aggregate) MergeSpeakerDiarization(segments []annotation.SpeakerSegment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginMerge(annotation.PipelineSpeakerDiarization)
	a.data.SpeakerDiarization = segments
	a.endMerge()
}

// MergeSceneDetection replaces the scene_detection segments.
func (a *Aggregate) MergeSceneDetection(segments []annotation.SceneSegment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginMerge(annotation.PipelineSceneDetection)
	a.data.SceneDetection = segments
	a.endMerge()
}

// AddWarnings records non-fatal issues from a parser or validator run,
// prefixed with the source they came from.
func (a *Aggregate) AddWarnings(source string, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range warnings {
		a.warnings = append(a.warnings, source+": "+w)
	}
}

// State reports the session lifecycle state.
func (a *Aggregate) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Pipelines returns the ordered set of pipeline names merged so far.
func (a *Aggregate) Pipelines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.data.Metadata.Pipelines))
	copy(out, a.data.Metadata.Pipelines)
	return out
}

// Warnings returns the accumulated non-fatal warning list.
func (a *Aggregate) Warnings() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.warnings))
	copy(out, a.warnings)
	return out
}

// Snapshot returns the merged dataset. Record slices are shared with the
// aggregate; callers must treat them as read-only, which the canonical
// record contract already requires.
func (a *Aggregate) Snapshot() annotation.StandardAnnotationData {
	a.mu.Lock()
	defer a.mu.Unlock()
	data := a.data
	data.Metadata.Pipelines = make([]string, len(a.data.Metadata.Pipelines))
	copy(data.Metadata.Pipelines, a.data.Metadata.Pipelines)
	return data
}
