package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annolens/annolens-agent/internal/annotation"
)

func TestParseBundlePreservesDocumentOrder(t *testing.T) {
	input := `{
		"video_info": {"filename": "clip.mp4", "duration": 30.0, "width": 1920, "height": 1080, "frame_rate": 24},
		"pipeline_results": {
			"scene_detection": [{"start_time": 0, "end_time": 10, "scene_type": "intro"}],
			"speech_recognition": [{"startTime": 1.0, "endTime": 2.0, "text": "hello"}]
		}
	}`

	bundle, warnings, err := ParseBundle([]byte(input))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.NotNil(t, bundle.VideoInfo)
	assert.Equal(t, "clip.mp4", bundle.VideoInfo.Filename)

	require.Len(t, bundle.Blocks, 2)
	assert.Equal(t, annotation.PipelineSceneDetection, bundle.Blocks[0].Pipeline)
	assert.Equal(t, annotation.PipelineSpeechRecognition, bundle.Blocks[1].Pipeline)

	require.Len(t, bundle.Blocks[0].Scenes, 1)
	require.Len(t, bundle.Blocks[1].Speech, 1)
	assert.Equal(t, "hello", bundle.Blocks[1].Speech[0].Text)
}

func TestParseBundleSpeakerEndRecomputed(t *testing.T) {
	input := `{
		"pipeline_results": {
			"speaker_diarization": [
				{"file_id": "f1", "start_time": 0.0, "duration": 2.0, "end_time": 9.0, "speaker_id": "S0", "confidence": 0.5}
			]
		}
	}`

	bundle, warnings, err := ParseBundle([]byte(input))
	require.NoError(t, err)
	require.Len(t, bundle.Blocks, 1)
	require.Len(t, bundle.Blocks[0].Speakers, 1)
	assert.Equal(t, 2.0, bundle.Blocks[0].Speakers[0].EndTime)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "recomputed from duration")
}

func TestParseBundleDropsInvertedSpeechCues(t *testing.T) {
	input := `{
		"pipeline_results": {
			"speech_recognition": [
				{"startTime": 5.0, "endTime": 1.0, "text": "backwards"},
				{"startTime": 6.0, "endTime": 7.0, "text": "fine"}
			]
		}
	}`

	bundle, warnings, err := ParseBundle([]byte(input))
	require.NoError(t, err)
	require.Len(t, bundle.Blocks, 1)
	require.Len(t, bundle.Blocks[0].Speech, 1)
	assert.Equal(t, "fine", bundle.Blocks[0].Speech[0].Text)
	assert.Len(t, warnings, 1)
}

func TestParseBundleSkipsUnknownPipelines(t *testing.T) {
	input := `{
		"pipeline_results": {
			"audio_fingerprint": {"whatever": true},
			"scene_detection": [{"start_time": 0, "end_time": 1}]
		}
	}`

	bundle, warnings, err := ParseBundle([]byte(input))
	require.NoError(t, err)
	require.Len(t, bundle.Blocks, 1)
	assert.Equal(t, annotation.PipelineSceneDetection, bundle.Blocks[0].Pipeline)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "audio_fingerprint")
}

func TestParseBundleEmbeddedCOCOBlock(t *testing.T) {
	doc := cocoDoc(t, []map[string]any{
		{"id": 1, "image_id": 1, "bbox": []float64{1, 2, 3, 4}, "keypoints": flatKeypoints(2)},
	})
	input := `{"pipeline_results": {"person_tracking": ` + string(doc) + `}}`

	bundle, warnings, err := ParseBundle([]byte(input))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, bundle.Blocks, 1)
	require.Len(t, bundle.Blocks[0].Person, 1)
	assert.Equal(t, 1.5, bundle.Blocks[0].Person[0].Timestamp)
}

func TestParseBundleMissingPipelineResults(t *testing.T) {
	_, _, err := ParseBundle([]byte(`{"video_info": {"filename": "clip.mp4"}}`))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StructuralError, perr.Kind)
}
