package annotation

// NumKeypoints is the COCO person skeleton size. Keypoint arrays in source
// files are flat and must hold exactly KeypointScalars numbers.
const (
	NumKeypoints    = 17
	KeypointScalars = NumKeypoints * 3
)

// TimeTolerance is the allowed drift, in seconds, between a segment's
// declared end time and start_time + duration.
const TimeTolerance = 0.001

// KeypointNames lists the 17 COCO keypoints in canonical order.
var KeypointNames = [NumKeypoints]string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// CanonicalActionUnits is the fixed OpenFace3 action-unit key set. Parsed
// face features always carry all of these keys.
var CanonicalActionUnits = []string{
	"AU1", "AU2", "AU4", "AU6", "AU9", "AU12", "AU25", "AU26",
}

// CanonicalEmotions is the fixed emotion label set. Parsed emotion blocks
// always carry a probability for each, defaulting to zero.
var CanonicalEmotions = []string{
	"neutral", "happiness", "sadness", "surprise",
	"fear", "disgust", "anger", "contempt",
}

// CanonicalizeActionUnits remaps a raw action-unit map onto the canonical
// key set. Missing units default to a neutral zero value; keys outside the
// canonical set are dropped. The input map is not modified.
func CanonicalizeActionUnits(raw map[string]ActionUnit) map[string]ActionUnit {
	out := make(map[string]ActionUnit, len(CanonicalActionUnits))
	for _, name := range CanonicalActionUnits {
		out[name] = raw[name]
	}
	return out
}

// CanonicalizeEmotion returns a copy of e whose Probabilities map contains
// every canonical emotion key, defaulting absent labels to zero.
// Non-canonical labels are dropped. A nil input stays nil.
func CanonicalizeEmotion(e *Emotion) *Emotion {
	if e == nil {
		return nil
	}
	out := *e
	out.Probabilities = make(map[string]float64, len(CanonicalEmotions))
	for _, label := range CanonicalEmotions {
		out.Probabilities[label] = e.Probabilities[label]
	}
	return &out
}
