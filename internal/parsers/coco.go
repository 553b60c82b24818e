package parsers

import (
	"encoding/json"

	"github.com/annolens/annolens-agent/internal/annotation"
)

// Raw COCO document shape, shared by the person-tracking and face parsers.
type cocoFile struct {
	Info        cocoInfo         `json:"info"`
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
}

type cocoInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

type cocoImage struct {
	ID          int64    `json:"id"`
	FileName    string   `json:"file_name"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Timestamp   *float64 `json:"timestamp"`
	FrameNumber *int64   `json:"frame_number"`
}

type cocoAnnotation struct {
	ID           int64          `json:"id"`
	ImageID      int64          `json:"image_id"`
	CategoryID   int64          `json:"category_id"`
	BBox         []float64      `json:"bbox"`
	Keypoints    []float64      `json:"keypoints"`
	NumKeypoints *int           `json:"num_keypoints"`
	Score        float64        `json:"score"`
	TrackID      *int64         `json:"track_id"`
	Timestamp    *float64       `json:"timestamp"`
	FrameNumber  *int64         `json:"frame_number"`
	PersonID     string         `json:"person_id"`
	PersonLabel  string         `json:"person_label"`
	LabelConf    float64        `json:"label_confidence"`
	LabelMethod  string         `json:"labeling_method"`
	OpenFace3    *rawOpenFace3  `json:"openface3"`
	Raw          map[string]any `json:"-"`
}

// ParsePersonTracking converts a COCO person-tracking export into canonical
// records. Annotations with malformed bbox or keypoint arrays are skipped
// with a warning; a declared num_keypoints that disagrees with the observed
// visible count is reported but the observed count wins.
func ParsePersonTracking(data []byte) ([]annotation.PersonTrackingRecord, []string, error) {
	var doc cocoFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, structural("coco", "not a COCO JSON document: %v", err)
	}
	if doc.Annotations == nil {
		return nil, nil, structural("coco", "missing annotations array")
	}

	timestamps, frames := imageLookups(doc.Images)

	var warnings []string
	records := make([]annotation.PersonTrackingRecord, 0, len(doc.Annotations))

	for i, ann := range doc.Annotations {
		if len(ann.BBox) != 4 {
			warnf(&warnings, "annotations[%d]: bbox has %d elements, want 4; skipped", i, len(ann.BBox))
			continue
		}
		if len(ann.Keypoints) != annotation.KeypointScalars {
			warnf(&warnings, "annotations[%d]: keypoints has %d scalars, want %d; skipped",
				i, len(ann.Keypoints), annotation.KeypointScalars)
			continue
		}

		rec := annotation.PersonTrackingRecord{
			ID:              ann.ID,
			ImageID:         ann.ImageID,
			BBox:            annotation.BBox{ann.BBox[0], ann.BBox[1], ann.BBox[2], ann.BBox[3]},
			Keypoints:       foldKeypoints(ann.Keypoints),
			TrackID:         ann.TrackID,
			Score:           ann.Score,
			PersonID:        ann.PersonID,
			PersonLabel:     ann.PersonLabel,
			LabelConfidence: ann.LabelConf,
			LabelingMethod:  ann.LabelMethod,
		}
		rec.Timestamp = resolveTimestamp(ann, timestamps, i, &warnings)
		rec.FrameNumber = resolveFrame(ann, frames)

		if ann.NumKeypoints != nil {
			observed := rec.VisibleKeypoints()
			if *ann.NumKeypoints != observed {
				warnf(&warnings, "annotations[%d]: declared num_keypoints=%d but %d keypoints are visible; using observed count",
					i, *ann.NumKeypoints, observed)
			}
		}

		records = append(records, rec)
	}

	return records, warnings, nil
}

func foldKeypoints(flat []float64) []annotation.Keypoint {
	kps := make([]annotation.Keypoint, 0, annotation.NumKeypoints)
	for i := 0; i+2 < len(flat); i += 3 {
		kps = append(kps, annotation.Keypoint{
			X:          flat[i],
			Y:          flat[i+1],
			Visibility: int(flat[i+2]),
		})
	}
	return kps
}

func imageLookups(images []cocoImage) (map[int64]float64, map[int64]int64) {
	timestamps := make(map[int64]float64, len(images))
	frames := make(map[int64]int64, len(images))
	for _, img := range images {
		if img.Timestamp != nil {
			timestamps[img.ID] = *img.Timestamp
		}
		if img.FrameNumber != nil {
			frames[img.ID] = *img.FrameNumber
		}
	}
	return timestamps, frames
}

// resolveTimestamp prefers an annotation's own timestamp, then the owning
// image's. Annotations with no resolvable timestamp default to 0 with a
// warning so a dashboard can still place them.
func resolveTimestamp(ann cocoAnnotation, timestamps map[int64]float64, idx int, warnings *[]string) float64 {
	if ann.Timestamp != nil {
		return *ann.Timestamp
	}
	if ts, ok := timestamps[ann.ImageID]; ok {
		return ts
	}
	warnf(warnings, "annotations[%d]: image_id %d has no timestamp; defaulting to 0", idx, ann.ImageID)
	return 0
}

func resolveFrame(ann cocoAnnotation, frames map[int64]int64) int64 {
	if ann.FrameNumber != nil {
		return *ann.FrameNumber
	}
	return frames[ann.ImageID]
}
