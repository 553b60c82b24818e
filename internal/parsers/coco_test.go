package parsers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annolens/annolens-agent/internal/annotation"
)

func flatKeypoints(visibility float64) []float64 {
	kps := make([]float64, 0, annotation.KeypointScalars)
	for i := 0; i < annotation.NumKeypoints; i++ {
		kps = append(kps, float64(10+i), float64(20+i), visibility)
	}
	return kps
}

func cocoDoc(t *testing.T, annotations []map[string]any) []byte {
	t.Helper()
	doc := map[string]any{
		"info": map[string]any{"description": "VideoAnnotator person tracking"},
		"images": []map[string]any{
			{"id": 1, "file_name": "frame_000045.jpg", "timestamp": 1.5, "frame_number": 45},
		},
		"annotations": annotations,
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestParsePersonTracking(t *testing.T) {
	data := cocoDoc(t, []map[string]any{
		{
			"id":        7,
			"image_id":  1,
			"bbox":      []float64{100.5, 200.25, 50, 80},
			"keypoints": flatKeypoints(2),
			"track_id":  3,
			"score":     0.97,
		},
	})

	records, warnings, err := ParsePersonTracking(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, warnings)

	rec := records[0]
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, annotation.BBox{100.5, 200.25, 50, 80}, rec.BBox)
	assert.Equal(t, 1.5, rec.Timestamp)
	assert.Equal(t, int64(45), rec.FrameNumber)
	require.NotNil(t, rec.TrackID)
	assert.Equal(t, int64(3), *rec.TrackID)

	require.Len(t, rec.Keypoints, annotation.NumKeypoints)
	assert.Equal(t, annotation.Keypoint{X: 10, Y: 20, Visibility: 2}, rec.Keypoints[0])
	assert.Equal(t, annotation.NumKeypoints, rec.VisibleKeypoints())
}

func TestParsePersonTrackingSkipsMalformedRecords(t *testing.T) {
	data := cocoDoc(t, []map[string]any{
		{"id": 1, "image_id": 1, "bbox": []float64{1, 2, 3}, "keypoints": flatKeypoints(2)},
		{"id": 2, "image_id": 1, "bbox": []float64{1, 2, 3, 4}, "keypoints": []float64{1, 2, 2}},
		{"id": 3, "image_id": 1, "bbox": []float64{1, 2, 3, 4}, "keypoints": flatKeypoints(1)},
	})

	records, warnings, err := ParsePersonTracking(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "bbox has 3 elements")
	assert.Contains(t, warnings[1], "keypoints has 3 scalars")
}

func TestParsePersonTrackingNumKeypointsMismatch(t *testing.T) {
	data := cocoDoc(t, []map[string]any{
		{
			"id":            1,
			"image_id":      1,
			"bbox":          []float64{1, 2, 3, 4},
			"keypoints":     flatKeypoints(2),
			"num_keypoints": 5,
		},
	})

	records, warnings, err := ParsePersonTracking(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	// The observed count wins; the disagreement is only reported.
	assert.Equal(t, annotation.NumKeypoints, records[0].VisibleKeypoints())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "num_keypoints=5")
}

func TestParsePersonTrackingMissingTimestampDefaultsToZero(t *testing.T) {
	doc := map[string]any{
		"annotations": []map[string]any{
			{"id": 1, "image_id": 99, "bbox": []float64{1, 2, 3, 4}, "keypoints": flatKeypoints(2)},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	records, warnings, err := ParsePersonTracking(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.0, records[0].Timestamp)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no timestamp")
}

func TestParsePersonTrackingStructuralFailures(t *testing.T) {
	for name, data := range map[string]string{
		"not json":       "not json at all",
		"no annotations": `{"info": {"description": "whatever"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParsePersonTracking([]byte(data))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, StructuralError, perr.Kind)
		})
	}
}
