package parsers

import (
	"encoding/json"
	"strings"

	"github.com/annolens/annolens-agent/internal/annotation"
	"github.com/annolens/annolens-agent/internal/detect"
)

// rawOpenFace3 is the per-annotation feature block in a VideoAnnotator
// face export.
type rawOpenFace3 struct {
	Confidence  float64             `json:"confidence"`
	Timestamp   *float64            `json:"timestamp"`
	Landmarks2D [][]float64         `json:"landmarks_2d"`
	ActionUnits map[string]rawAU    `json:"action_units"`
	HeadPose    *annotation.HeadPose `json:"head_pose"`
	Gaze        *rawGaze            `json:"gaze"`
	Emotion     *rawEmotion         `json:"emotion"`
}

type rawAU struct {
	Intensity float64 `json:"intensity"`
	Presence  bool    `json:"presence"`
}

type rawGaze struct {
	Vector     []float64 `json:"vector"`
	Direction  []float64 `json:"direction"`
	Confidence float64   `json:"confidence"`
}

type rawEmotion struct {
	Dominant      string             `json:"dominant"`
	Probabilities map[string]float64 `json:"probabilities"`
	Valence       float64            `json:"valence"`
	Arousal       float64            `json:"arousal"`
	Confidence    float64            `json:"confidence"`
}

// ParseFaceAnnotations converts a COCO+OpenFace3 export into canonical
// face records. The file must both name the expected product in
// info.description and carry at least one openface3 block; this gate
// keeps generic COCO files from being misread as face data. Action units
// and emotion probabilities are remapped onto the canonical key sets so
// consumers never branch on key presence.
func ParseFaceAnnotations(data []byte) ([]annotation.FaceAnnotation, []string, error) {
	var doc cocoFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, structural("openface3", "not a COCO JSON document: %v", err)
	}
	if doc.Annotations == nil {
		return nil, nil, structural("openface3", "missing annotations array")
	}
	if !strings.Contains(doc.Info.Description, detect.ProductMarker) {
		return nil, nil, structural("openface3", "info.description %q does not reference %s",
			doc.Info.Description, detect.ProductMarker)
	}
	if !anyOpenFace(doc.Annotations) {
		return nil, nil, structural("openface3", "no annotation carries an openface3 block")
	}

	timestamps, _ := imageLookups(doc.Images)

	var warnings []string
	records := make([]annotation.FaceAnnotation, 0, len(doc.Annotations))

	for i, ann := range doc.Annotations {
		if ann.OpenFace3 == nil {
			warnf(&warnings, "annotations[%d]: missing openface3 block; skipped", i)
			continue
		}
		if len(ann.BBox) != 4 {
			warnf(&warnings, "annotations[%d]: bbox has %d elements, want 4; skipped", i, len(ann.BBox))
			continue
		}

		rec := annotation.FaceAnnotation{
			AnnotationID:   ann.ID,
			BBox:           annotation.BBox{ann.BBox[0], ann.BBox[1], ann.BBox[2], ann.BBox[3]},
			FaceConfidence: ann.OpenFace3.Confidence,
			Features:       convertFeatures(ann.OpenFace3, i, &warnings),
		}

		if ts, ok := timestamps[ann.ImageID]; ok {
			rec.Timestamp = ts
		} else if ann.OpenFace3.Timestamp != nil {
			rec.Timestamp = *ann.OpenFace3.Timestamp
		} else {
			warnf(&warnings, "annotations[%d]: image_id %d has no matching image; timestamp defaulted to 0", i, ann.ImageID)
		}

		records = append(records, rec)
	}

	return records, warnings, nil
}

func anyOpenFace(anns []cocoAnnotation) bool {
	for _, ann := range anns {
		if ann.OpenFace3 != nil {
			return true
		}
	}
	return false
}

func convertFeatures(of *rawOpenFace3, idx int, warnings *[]string) *annotation.FaceFeatures {
	feat := &annotation.FaceFeatures{}
	empty := true

	if len(of.Landmarks2D) > 0 {
		feat.Landmarks2D = make([][2]float64, 0, len(of.Landmarks2D))
		for j, pt := range of.Landmarks2D {
			if len(pt) != 2 {
				warnf(warnings, "annotations[%d]: landmarks_2d[%d] has %d coordinates, want 2; dropped", idx, j, len(pt))
				continue
			}
			feat.Landmarks2D = append(feat.Landmarks2D, [2]float64{pt[0], pt[1]})
		}
		empty = false
	}

	if of.ActionUnits != nil {
		raw := make(map[string]annotation.ActionUnit, len(of.ActionUnits))
		for name, au := range of.ActionUnits {
			raw[normalizeAUName(name)] = annotation.ActionUnit{Intensity: au.Intensity, Presence: au.Presence}
		}
		feat.ActionUnits = annotation.CanonicalizeActionUnits(raw)
		empty = false
	}

	if of.HeadPose != nil {
		hp := *of.HeadPose
		feat.HeadPose = &hp
		empty = false
	}

	if of.Gaze != nil {
		vec := of.Gaze.Vector
		if len(vec) == 0 {
			vec = of.Gaze.Direction
		}
		if len(vec) == 3 {
			feat.Gaze = &annotation.Gaze{
				Vector:     [3]float64{vec[0], vec[1], vec[2]},
				Confidence: of.Gaze.Confidence,
			}
			empty = false
		} else {
			warnf(warnings, "annotations[%d]: gaze vector has %d components, want 3; dropped", idx, len(vec))
		}
	}

	if of.Emotion != nil {
		feat.Emotion = annotation.CanonicalizeEmotion(&annotation.Emotion{
			Dominant:      of.Emotion.Dominant,
			Probabilities: of.Emotion.Probabilities,
			Valence:       of.Emotion.Valence,
			Arousal:       of.Emotion.Arousal,
			Confidence:    of.Emotion.Confidence,
		})
		empty = false
	}

	if empty {
		return nil
	}
	return feat
}

// normalizeAUName maps source spellings like "AU01" or "au1" onto the
// canonical "AU1" form.
func normalizeAUName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "AU") {
		return upper
	}
	digits := strings.TrimLeft(upper[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "AU" + digits
}
