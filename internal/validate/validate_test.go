package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annolens/annolens-agent/internal/annotation"
)

func validPerson() annotation.PersonTrackingRecord {
	kps := make([]annotation.Keypoint, annotation.NumKeypoints)
	for i := range kps {
		kps[i] = annotation.Keypoint{X: float64(i), Y: float64(i), Visibility: 2}
	}
	return annotation.PersonTrackingRecord{
		ID:        1,
		BBox:      annotation.BBox{0, 0, 10, 10},
		Keypoints: kps,
		Score:     0.9,
		Timestamp: 1.0,
	}
}

func TestPersonRecord(t *testing.T) {
	require.NoError(t, PersonRecord(validPerson(), "person_tracking[0]"))

	t.Run("wrong keypoint count", func(t *testing.T) {
		r := validPerson()
		r.Keypoints = r.Keypoints[:5]
		err := PersonRecord(r, "person_tracking[0]")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "person_tracking[0].keypoints", verr.Path)
	})

	t.Run("bad visibility flag", func(t *testing.T) {
		r := validPerson()
		r.Keypoints[3].Visibility = 7
		err := PersonRecord(r, "person_tracking[0]")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "person_tracking[0].keypoints[3].visibility", verr.Path)
		assert.Equal(t, 7, verr.Value)
	})

	t.Run("score out of range", func(t *testing.T) {
		r := validPerson()
		r.Score = 1.2
		assert.Error(t, PersonRecord(r, "person_tracking[0]"))
	})

	t.Run("negative bbox extent", func(t *testing.T) {
		r := validPerson()
		r.BBox[2] = -1
		assert.Error(t, PersonRecord(r, "person_tracking[0]"))
	})
}

func TestCue(t *testing.T) {
	require.NoError(t, Cue(annotation.SpeechCue{StartTime: 1, EndTime: 2, Text: "x"}, "speech_recognition[0]"))
	assert.Error(t, Cue(annotation.SpeechCue{StartTime: -1, EndTime: 2}, "speech_recognition[0]"))
	assert.Error(t, Cue(annotation.SpeechCue{StartTime: 2, EndTime: 2}, "speech_recognition[0]"))
}

func TestSpeakerSegment(t *testing.T) {
	good := annotation.SpeakerSegment{
		FileID: "f1", StartTime: 1, Duration: 2, EndTime: 3, SpeakerID: "S0", Confidence: 0.5,
	}
	require.NoError(t, SpeakerSegment(good, "speaker_diarization[0]"))

	t.Run("duration arithmetic drift", func(t *testing.T) {
		s := good
		s.EndTime = 3.01
		err := SpeakerSegment(s, "speaker_diarization[0]")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "speaker_diarization[0].end_time", verr.Path)
	})

	t.Run("drift within tolerance passes", func(t *testing.T) {
		s := good
		s.EndTime = 3.0005
		assert.NoError(t, SpeakerSegment(s, "speaker_diarization[0]"))
	})

	t.Run("empty speaker id", func(t *testing.T) {
		s := good
		s.SpeakerID = ""
		assert.Error(t, SpeakerSegment(s, "speaker_diarization[0]"))
	})
}

func TestSceneSegment(t *testing.T) {
	require.NoError(t, SceneSegment(annotation.SceneSegment{
		StartTime: 0, EndTime: 5, Duration: 5, SceneType: "scene",
		AllScores: map[string]float64{"indoor": 0.8},
	}, "scene_detection[0]"))

	assert.Error(t, SceneSegment(annotation.SceneSegment{StartTime: 5, EndTime: 1}, "scene_detection[0]"))
	assert.Error(t, SceneSegment(annotation.SceneSegment{
		StartTime: 0, EndTime: 1, Duration: 1,
		AllScores: map[string]float64{"indoor": 1.5},
	}, "scene_detection[0]"))
}

func TestFaceRecord(t *testing.T) {
	probs := make(map[string]float64, len(annotation.CanonicalEmotions))
	for _, label := range annotation.CanonicalEmotions {
		probs[label] = 0
	}
	probs["happiness"] = 0.9

	good := annotation.FaceAnnotation{
		AnnotationID:   1,
		BBox:           annotation.BBox{0, 0, 10, 10},
		FaceConfidence: 0.9,
		Features: &annotation.FaceFeatures{
			Emotion: &annotation.Emotion{Dominant: "happiness", Probabilities: probs},
		},
	}
	require.NoError(t, FaceRecord(good, "face_analysis[0]"))

	t.Run("missing canonical emotion key", func(t *testing.T) {
		f := good
		partial := map[string]float64{"happiness": 0.9}
		f.Features = &annotation.FaceFeatures{Emotion: &annotation.Emotion{Probabilities: partial}}
		err := FaceRecord(f, "face_analysis[0]")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "missing canonical label")
	})

	t.Run("no features is fine", func(t *testing.T) {
		f := good
		f.Features = nil
		assert.NoError(t, FaceRecord(f, "face_analysis[0]"))
	})
}

func TestSalvageKeepsValidRecords(t *testing.T) {
	cues := []annotation.SpeechCue{
		{StartTime: 1, EndTime: 2, Text: "good"},
		{StartTime: 5, EndTime: 5, Text: "zero length"},
		{StartTime: 6, EndTime: 8, Text: "also good"},
	}

	kept, warnings := SpeechCues(cues)
	require.Len(t, kept, 2)
	assert.Equal(t, "good", kept[0].Text)
	assert.Equal(t, "also good", kept[1].Text)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "speech_recognition[1]")
}
